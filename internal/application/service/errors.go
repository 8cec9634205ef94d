package service

import (
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
)

func errUnknownExchange(exchange model.Exchange) error {
	return fault.New(fault.KindValidation, "unknown exchange %q", exchange)
}

func errSymbolMissing(exchange model.Exchange, symbol string) error {
	return fault.New(fault.KindNotSupported, "%s does not list %s", exchange, symbol)
}
