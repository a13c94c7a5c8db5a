package bingx

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderParams() url.Values {
	p := url.Values{}
	p.Set("symbol", "BTC-USDT")
	p.Set("type", "MARKET")
	p.Set("side", "BUY")
	p.Set("quantity", "0.01")
	p.Set("timestamp", "1700000000000")
	return p
}

func TestCanonicalSortsKeys(t *testing.T) {
	assert.Equal(t, "quantity=0.01&side=BUY&symbol=BTC-USDT&timestamp=1700000000000&type=MARKET", Canonical(orderParams()))
}

func TestCanonicalLeavesValuesUnescaped(t *testing.T) {
	p := url.Values{}
	p.Set("stopLoss", `{"type":"STOP_MARKET","stopPrice":100}`)
	p.Set("a", "1")
	assert.Equal(t, `a=1&stopLoss={"type":"STOP_MARKET","stopPrice":100}`, Canonical(p))
	assert.Contains(t, encodeQuery(p), "stopLoss=%7B%22type%22")
}

func TestSignKnownVector(t *testing.T) {
	got := Sign(Canonical(orderParams()), "secret")
	assert.Equal(t, "8aec3fe7e992f6587c26ec4b0fc28791841e3a674bfa04411968118fa550f406", got)
}

func TestSignDeterministic(t *testing.T) {
	first := Sign(Canonical(orderParams()), "secret")
	for i := 0; i < 50; i++ {
		// rebuild the values each time so map iteration order varies
		require.Equal(t, first, Sign(Canonical(orderParams()), "secret"))
	}
	assert.NotEqual(t, first, Sign(Canonical(orderParams()), "other-secret"))
}
