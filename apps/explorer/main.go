// The explorer app walks through price, tick, and sqrtPriceX96
// conversions plus deposit liquidity sizing. It shows the float-sqrt
// versus high-precision-sqrt difference on purpose, since that mismatch
// is a classic source of confusion when following the math by hand.
package main

import (
	"html/template"
	"log"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/v3labs/demohub/applib"
	"github.com/v3labs/demohub/applib/httputils"
	"github.com/v3labs/demohub/univ3"
)

const version = "1.0.0"

type formInput struct {
	Token0     string // "ETH" or "USDC"; flipping inverts the raw price
	HumanPrice float64
	LowerHuman float64
	UpperHuman float64
	Amount0    float64
	Amount1    float64
	Decimals   int
}

func defaultInput() formInput {
	return formInput{
		Token0:     "ETH",
		HumanPrice: 5000.0,
		LowerHuman: 4545.0,
		UpperHuman: 5500.0,
		Amount0:    1.0,
		Amount1:    5000.0,
		Decimals:   18,
	}
}

func parseInput(r *http.Request) formInput {
	in := defaultInput()
	q := r.URL.Query()

	if q.Get("token0") == "USDC" {
		in.Token0 = "USDC"
	}
	floatParam(q.Get("price"), &in.HumanPrice)
	floatParam(q.Get("lower"), &in.LowerHuman)
	floatParam(q.Get("upper"), &in.UpperHuman)
	floatParam(q.Get("amount0"), &in.Amount0)
	floatParam(q.Get("amount1"), &in.Amount1)
	if v, err := strconv.Atoi(q.Get("decimals")); err == nil && v >= 0 && v <= 18 {
		in.Decimals = v
	}
	return in
}

func floatParam(s string, dst *float64) {
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
		*dst = v
	}
}

// humanToRaw converts the human USDC-per-ETH price into the raw pool
// price P = token1/token0 for the chosen orientation.
func (in formInput) humanToRaw(human float64) float64 {
	if in.Token0 == "ETH" {
		return human
	}
	return 1.0 / human
}

func (in formInput) token1() string {
	if in.Token0 == "ETH" {
		return "USDC"
	}
	return "ETH"
}

type pageData struct {
	BasePath string
	In       formInput
	Token1   string

	PCur float64
	PLow float64
	PUpp float64

	TickCur int
	TickLow int
	TickUpp int

	SqrtX96Float string
	SqrtX96Big   string
	FloatBigDiff string

	TickQuantized     int
	SqrtX96Tick       string
	TickQuantError    float64
	TickQuantPrice    float64
	SqrtX96Low        string
	SqrtX96Upp        string
	OutOfRange        bool
	Liquidity0        string
	Liquidity1        string
	LiquidityChosen   string
	LimitingSide      string
	RangeInvalid      bool
	RangeInvalidError string
}

func formatBigFloat(f *big.Float) string {
	out, _ := f.Int(nil)
	return out.String()
}

func compute(in formInput, basePath string) pageData {
	data := pageData{BasePath: basePath, In: in, Token1: in.token1()}

	data.PCur = in.humanToRaw(in.HumanPrice)
	pA := in.humanToRaw(in.LowerHuman)
	pB := in.humanToRaw(in.UpperHuman)
	// Flipping the orientation inverts the bounds too.
	data.PLow = math.Min(pA, pB)
	data.PUpp = math.Max(pA, pB)

	if data.PLow >= data.PUpp {
		data.RangeInvalid = true
		data.RangeInvalidError = "Lower and upper bound collapse to the same raw price."
		return data
	}

	data.TickCur = univ3.PriceToTick(data.PCur)
	data.TickLow = univ3.PriceToTick(data.PLow)
	data.TickUpp = univ3.PriceToTick(data.PUpp)

	sqrtFloat := univ3.PriceToSqrtPriceX96(data.PCur)
	sqrtBig := univ3.PriceToSqrtPriceX96Big(data.PCur)
	data.SqrtX96Float = sqrtFloat.String()
	data.SqrtX96Big = sqrtBig.String()
	diff := new(big.Int).Sub(sqrtFloat, sqrtBig)
	if diff.Sign() >= 0 {
		data.FloatBigDiff = "+" + diff.String()
	} else {
		data.FloatBigDiff = diff.String()
	}

	// The pool effectively operates on the tick grid: the initialized
	// price is quantized to its tick.
	data.TickQuantized = data.TickCur
	data.TickQuantPrice = univ3.TickToPrice(data.TickQuantized)
	data.SqrtX96Tick = univ3.TickToSqrtPriceX96(data.TickQuantized).String()
	data.TickQuantError = data.TickQuantPrice - data.PCur

	sqrtLow := univ3.PriceToSqrtPriceX96(data.PLow)
	sqrtUpp := univ3.PriceToSqrtPriceX96(data.PUpp)
	data.SqrtX96Low = sqrtLow.String()
	data.SqrtX96Upp = sqrtUpp.String()
	data.OutOfRange = data.PCur < data.PLow || data.PCur > data.PUpp

	scale := math.Pow10(in.Decimals)
	amount0Raw, _ := new(big.Float).SetFloat64(in.Amount0 * scale).Int(nil)
	amount1Raw, _ := new(big.Float).SetFloat64(in.Amount1 * scale).Int(nil)

	// L0 uses amount0 over [cur, upper]; L1 uses amount1 over [lower, cur].
	liq0 := univ3.Liquidity0(amount0Raw, sqrtFloat, sqrtUpp)
	liq1 := univ3.Liquidity1(amount1Raw, sqrtLow, sqrtFloat)
	data.Liquidity0 = formatBigFloat(liq0)
	data.Liquidity1 = formatBigFloat(liq1)

	if liq0.Cmp(liq1) < 0 {
		data.LiquidityChosen = data.Liquidity0
		data.LimitingSide = "token0-side (L0)"
	} else {
		data.LiquidityChosen = data.Liquidity1
		data.LimitingSide = "token1-side (L1)"
	}
	return data
}

var page = template.Must(template.New("explorer").Parse(`<!DOCTYPE html>
<html>
<head><title>Price / Tick / SqrtPriceX96 Explorer</title></head>
<body>
<h1>Price / Tick / SqrtPriceX96 + Liquidity Explorer</h1>

<form method="get" action="{{.BasePath}}">
<fieldset><legend>Token orientation (this flips the price)</legend>
  token0:
  <select name="token0">
    <option value="ETH" {{if eq .In.Token0 "ETH"}}selected{{end}}>ETH</option>
    <option value="USDC" {{if eq .In.Token0 "USDC"}}selected{{end}}>USDC</option>
  </select>
  (token1 is <b>{{.Token1}}</b>; raw price is P = token1/token0)<br>
</fieldset>
<fieldset><legend>Spot price and range (human: USDC per ETH)</legend>
  Price: <input name="price" value="{{.In.HumanPrice}}"><br>
  Lower bound: <input name="lower" value="{{.In.LowerHuman}}"><br>
  Upper bound: <input name="upper" value="{{.In.UpperHuman}}"><br>
</fieldset>
<fieldset><legend>Deposit amounts</legend>
  Amount of token0 ({{.In.Token0}}): <input name="amount0" value="{{.In.Amount0}}"><br>
  Amount of token1 ({{.Token1}}): <input name="amount1" value="{{.In.Amount1}}"><br>
  Decimals (both tokens): <input name="decimals" value="{{.In.Decimals}}"><br>
</fieldset>
<button type="submit">Explore</button>
</form>

{{if .RangeInvalid}}<p style="color:red">{{.RangeInvalidError}}</p>{{else}}
<h2>Raw pool prices (P = token1/token0)</h2>
<ul>
<li>P_cur = {{printf "%.12g" .PCur}}</li>
<li>P_low = {{printf "%.12g" .PLow}}</li>
<li>P_upp = {{printf "%.12g" .PUpp}}</li>
</ul>
{{if .OutOfRange}}<p><b>Note:</b> current price is outside the range; liquidity math changes by region.</p>{{end}}

<h2>Price &rarr; tick &rarr; sqrtPriceX96</h2>
<ul>
<li>tick = floor(log base 1.0001 of P) = <b>{{.TickCur}}</b></li>
<li>sqrtPriceX96 (float sqrt): <code>{{.SqrtX96Float}}</code></li>
<li>sqrtPriceX96 (high-precision sqrt): <code>{{.SqrtX96Big}}</code></li>
<li>float &minus; high-precision = <b>{{.FloatBigDiff}}</b></li>
</ul>

<h2>Tick quantization</h2>
<ul>
<li>tick-quantized price: {{printf "%.6g" .TickQuantPrice}} (tick {{.TickQuantized}})</li>
<li>quantization error (P_tick &minus; P_cur): {{printf "%.6g" .TickQuantError}}</li>
<li>sqrtPriceX96(tick): <code>{{.SqrtX96Tick}}</code></li>
</ul>

<h2>Range bounds</h2>
<ul>
<li>sqrtPriceX96(low) = <code>{{.SqrtX96Low}}</code> (tick {{.TickLow}})</li>
<li>sqrtPriceX96(upp) = <code>{{.SqrtX96Upp}}</code> (tick {{.TickUpp}})</li>
</ul>

<h2>Deposit liquidity</h2>
<ul>
<li>L0 (from token0, over [cur, upper]): {{.Liquidity0}}</li>
<li>L1 (from token1, over [lower, cur]): {{.Liquidity1}}</li>
<li>Chosen L = min(L0, L1) = <b>{{.LiquidityChosen}}</b> &mdash; limiting side: {{.LimitingSide}}</li>
</ul>
<p><i>Simplified formulas; production contracts use careful rounding and tick math.</i></p>
{{end}}
</body>
</html>
`))

func main() {
	app, err := applib.Init(version)
	if err != nil {
		log.Fatal(err)
	}

	app.Router().HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		data := compute(parseInput(r), app.BasePath())
		httputils.RenderTemplate(w, page, data)
	}).Methods(http.MethodGet)

	app.Serve()
}
