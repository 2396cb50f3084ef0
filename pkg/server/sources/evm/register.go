package evm

import (
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

func init() {
	sources.Register("evm.uniswapv2", NewUniswapV2Source)
}
