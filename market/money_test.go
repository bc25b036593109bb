package market_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fanfund/market"
)

func TestCurrency_Format(t *testing.T) {
	assert.Equal(t, "50 KSh", market.DefaultCurrency.Format(50))
	assert.Equal(t, "0 KSh", market.DefaultCurrency.Format(0))

	usd := market.Currency{Label: "USD", Exponent: 2}
	assert.Equal(t, "12.50 USD", usd.Format(1250))
}

func TestCurrency_ParseMoney(t *testing.T) {
	m, err := market.DefaultCurrency.ParseMoney(" 150 ")
	require.NoError(t, err)
	assert.Equal(t, market.Money(150), m)

	usd := market.Currency{Label: "USD", Exponent: 2}
	m, err = usd.ParseMoney("12.5")
	require.NoError(t, err)
	assert.Equal(t, market.Money(1250), m)

	_, err = market.DefaultCurrency.ParseMoney("12.5")
	assert.ErrorIs(t, err, market.ErrInvalidAmount, "too precise for KSh")
	_, err = market.DefaultCurrency.ParseMoney("abc")
	assert.ErrorIs(t, err, market.ErrInvalidAmount)
}

func TestSupportTiers(t *testing.T) {
	tiers := market.SupportTiers(market.DefaultCurrency)
	require.Len(t, tiers, 6)
	assert.Equal(t, market.Money(30), tiers[0].Value)
	assert.Equal(t, "400 KSh", tiers[5].Label)
}

func TestMonthsBetween(t *testing.T) {
	from := market.Month{Year: 2024, Month: time.November}
	to := market.Month{Year: 2025, Month: time.February}

	months := market.MonthsBetween(from, to)
	require.Len(t, months, 4)
	assert.Equal(t, "2024-11", months[0].String())
	assert.Equal(t, "2025-01", months[2].String())
	assert.Nil(t, market.MonthsBetween(to, from))

	m, err := market.ParseMonth("2025-02")
	require.NoError(t, err)
	assert.Equal(t, to, m)
	_, err = market.ParseMonth("2025/02")
	assert.Error(t, err)
}
