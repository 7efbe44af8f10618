package registry

import "github.com/Nzyazin/ratecache/internal/core/models"

// defaultCurrencies mirrors the ECB reference rate list.
var defaultCurrencies = []models.CurrencyInfo{
	{Code: "AUD", Name: "Australian dollar", Symbol: "A$"},
	{Code: "BGN", Name: "Bulgarian lev", Symbol: "лв"},
	{Code: "BRL", Name: "Brazilian real", Symbol: "R$"},
	{Code: "CAD", Name: "Canadian dollar", Symbol: "C$"},
	{Code: "CHF", Name: "Swiss franc", Symbol: "Fr"},
	{Code: "CNY", Name: "Chinese yuan", Symbol: "元"},
	{Code: "CZK", Name: "Czech koruna", Symbol: "Kč"},
	{Code: "DKK", Name: "Danish krone", Symbol: "kr."},
	{Code: "EUR", Name: "Euro", Symbol: "€"},
	{Code: "GBP", Name: "Pound sterling", Symbol: "£"},
	{Code: "HKD", Name: "Hong Kong dollar", Symbol: "HK$"},
	{Code: "HRK", Name: "Croatian kuna", Symbol: "kn"},
	{Code: "HUF", Name: "Hungarian forint", Symbol: "Ft"},
	{Code: "IDR", Name: "Indonesian rupiah", Symbol: "Rp"},
	{Code: "ILS", Name: "Israeli new shekel", Symbol: "₪"},
	{Code: "INR", Name: "Indian rupee", Symbol: "₹"},
	{Code: "JPY", Name: "Japanese yen", Symbol: "¥"},
	{Code: "KRW", Name: "South Korean won", Symbol: "₩"},
	{Code: "MXN", Name: "Mexican peso", Symbol: "Mex$"},
	{Code: "MYR", Name: "Malaysian ringgit", Symbol: "RM"},
	{Code: "NOK", Name: "Norwegian krone", Symbol: "kr"},
	{Code: "NZD", Name: "New Zealand dollar", Symbol: "$"},
	{Code: "PHP", Name: "Philippine peso", Symbol: "₱"},
	{Code: "PLN", Name: "Polish złoty", Symbol: "zł"},
	{Code: "RON", Name: "Romanian leu", Symbol: "L"},
	{Code: "RUB", Name: "Russian ruble", Symbol: "₽"},
	{Code: "SEK", Name: "Swedish krona", Symbol: "kr"},
	{Code: "SGD", Name: "Singapore dollar", Symbol: "S$"},
	{Code: "THB", Name: "Thai baht", Symbol: "฿"},
	{Code: "TRY", Name: "Turkish lira", Symbol: "₺"},
	{Code: "USD", Name: "United States dollar", Symbol: "$"},
	{Code: "ZAR", Name: "South African rand", Symbol: "R"},
}
