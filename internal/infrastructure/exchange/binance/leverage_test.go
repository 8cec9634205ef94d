package binance

import (
	"encoding/json"
	"testing"
)

func TestParseLeverageBrackets(t *testing.T) {
	payload := `{
		"code": "000000",
		"data": {
			"brackets": [
				{
					"symbol": "BTCUSDT",
					"riskBrackets": [
						{"maxOpenPosLeverage": 125},
						{"maxOpenPosLeverage": 50}
					]
				},
				{
					"symbol": "ETHUSDT",
					"maxLeverage": 75,
					"riskBrackets": []
				},
				{
					"symbol": "BTCUSD",
					"riskBrackets": [{"maxOpenPosLeverage": 100}]
				}
			]
		}
	}`

	var resp bracketsResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	leverage := parseBrackets(resp)
	if got := leverage["BTCUSDT"]; got != 125 {
		t.Fatalf("BTCUSDT leverage = %v, want the widest bracket 125", got)
	}
	if got := leverage["ETHUSDT"]; got != 75 {
		t.Fatalf("ETHUSDT leverage = %v, want the maxLeverage fallback 75", got)
	}
	if _, ok := leverage["BTCUSD"]; ok {
		t.Fatalf("coin-margined BTCUSD must be dropped")
	}
}

func TestParseLeverageBracketsEmpty(t *testing.T) {
	if got := parseBrackets(bracketsResponse{}); len(got) != 0 {
		t.Fatalf("empty payload should yield no entries, got %v", got)
	}
}
