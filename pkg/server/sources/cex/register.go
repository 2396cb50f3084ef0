package cex

import (
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

func init() {
	sources.Register("cex.binance", NewBinanceSource)
}
