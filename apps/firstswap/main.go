// The firstswap app is an interactive single-range swap simulator:
// liquidity stays constant while a token1-in swap moves the sqrt price,
// changing price and tick. It renders a server-side form; all math is in
// the univ3 package.
package main

import (
	"fmt"
	"html/template"
	"log"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/v3labs/demohub/applib"
	"github.com/v3labs/demohub/applib/httputils"
	"github.com/v3labs/demohub/univ3"
)

const version = "1.0.0"

type formInput struct {
	Price          float64
	LiquidityLog10 int
	RangeByTick    bool
	LowerPrice     float64
	UpperPrice     float64
	LowerTick      int
	UpperTick      int
	Token1In       float64
	Clamp          bool
	Token0Symbol   string
	Token1Symbol   string
	Token0Decimals int
	Token1Decimals int
}

func defaultInput() formInput {
	return formInput{
		Price:          5000.0,
		LiquidityLog10: 24,
		LowerPrice:     4500.0,
		UpperPrice:     5600.0,
		LowerTick:      univ3.PriceToTick(4500.0),
		UpperTick:      univ3.PriceToTick(5600.0),
		Token1In:       42.0,
		Clamp:          true,
		Token0Symbol:   "ETH",
		Token1Symbol:   "USDC",
		Token0Decimals: 18,
		Token1Decimals: 6,
	}
}

// presetInput returns the starting values for a named preset. The default
// is the book-like pool: price ~5000, token1 in = 42, large L.
func presetInput(name string) formInput {
	in := defaultInput()
	switch name {
	case "tiny": // big price impact
		in.Price = 2000.0
		in.LiquidityLog10 = 18
		in.LowerPrice = 1500.0
		in.UpperPrice = 2600.0
		in.LowerTick = univ3.PriceToTick(in.LowerPrice)
		in.UpperTick = univ3.PriceToTick(in.UpperPrice)
	case "huge": // tiny price impact
		in.LiquidityLog10 = 28
	}
	return in
}

func parseInput(r *http.Request) formInput {
	q := r.URL.Query()
	in := presetInput(q.Get("preset"))

	floatParam(q.Get("price"), &in.Price)
	intParam(q.Get("llog10"), &in.LiquidityLog10)
	in.RangeByTick = q.Get("rangemode") == "tick"
	floatParam(q.Get("lower"), &in.LowerPrice)
	floatParam(q.Get("upper"), &in.UpperPrice)
	intParam(q.Get("ltick"), &in.LowerTick)
	intParam(q.Get("utick"), &in.UpperTick)
	floatParam(q.Get("amount1"), &in.Token1In)
	if q.Has("submitted") {
		in.Clamp = q.Get("clamp") == "on"
	}
	if s := q.Get("sym0"); s != "" {
		in.Token0Symbol = s
	}
	if s := q.Get("sym1"); s != "" {
		in.Token1Symbol = s
	}
	intParam(q.Get("dec0"), &in.Token0Decimals)
	intParam(q.Get("dec1"), &in.Token1Decimals)

	if in.LiquidityLog10 < 6 {
		in.LiquidityLog10 = 6
	}
	if in.LiquidityLog10 > 32 {
		in.LiquidityLog10 = 32
	}
	return in
}

func floatParam(s string, dst *float64) {
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
		*dst = v
	}
}

func intParam(s string, dst *int) {
	if v, err := strconv.Atoi(s); err == nil {
		*dst = v
	}
}

type pageData struct {
	BasePath string
	In       formInput
	Error    string

	CurrentTick  int
	SqrtPCurX96  string
	LowerTick    int
	UpperTick    int
	OutOfRange   bool
	RangeInvalid bool

	NewPrice     float64
	NewTick      int
	SqrtPNextX96 string
	Clamped      bool
	Amount1Used  float64
	Amount0Out   float64
	Amount1Raw   string
	Amount0Raw   string

	RangeChart template.HTML
}

func scaleToRaw(human float64, decimals int) *big.Int {
	f := new(big.Float).SetFloat64(human * math.Pow10(decimals))
	out, _ := f.Int(nil)
	return out
}

func rawToHuman(raw *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(raw)
	f.Quo(f, new(big.Float).SetFloat64(math.Pow10(decimals)))
	out, _ := f.Float64()
	return out
}

func compute(in formInput, basePath string) pageData {
	data := pageData{BasePath: basePath, In: in}

	// The range always lives on the tick grid; in price mode the bounds are
	// quantized to their ticks first.
	lowerTick, upperTick := in.LowerTick, in.UpperTick
	if !in.RangeByTick {
		lowerTick = univ3.PriceToTick(in.LowerPrice)
		upperTick = univ3.PriceToTick(in.UpperPrice)
	}
	if lowerTick >= upperTick {
		data.RangeInvalid = true
		data.Error = "Lower bound must be below upper bound."
		return data
	}

	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(in.LiquidityLog10)), nil)
	sqrtCur := univ3.PriceToSqrtPriceX96(in.Price)
	data.CurrentTick = univ3.PriceToTick(in.Price)
	data.SqrtPCurX96 = sqrtCur.String()

	data.LowerTick = lowerTick
	data.UpperTick = upperTick
	sqrtLower := univ3.TickToSqrtPriceX96(data.LowerTick)
	sqrtUpper := univ3.TickToSqrtPriceX96(data.UpperTick)
	data.OutOfRange = sqrtCur.Cmp(sqrtLower) < 0 || sqrtCur.Cmp(sqrtUpper) > 0

	amount1In := scaleToRaw(in.Token1In, in.Token1Decimals)

	var res *univ3.SwapResult
	var err error
	if in.Clamp {
		res, err = univ3.SwapToken1InClamped(liquidity, sqrtCur, sqrtLower, sqrtUpper, amount1In)
	} else {
		res, err = univ3.SwapToken1In(liquidity, sqrtCur, amount1In)
	}
	if err != nil {
		data.Error = "Swap computation error: " + err.Error()
		return data
	}

	data.NewPrice = univ3.SqrtPriceX96ToPrice(res.SqrtPriceNextX96)
	data.NewTick = univ3.PriceToTick(data.NewPrice)
	data.SqrtPNextX96 = res.SqrtPriceNextX96.String()
	data.Clamped = res.Clamped
	data.Amount1Used = rawToHuman(res.Amount1Used, in.Token1Decimals)
	data.Amount0Out = rawToHuman(res.Amount0Out, in.Token0Decimals)
	data.Amount1Raw = res.Amount1Used.String()
	data.Amount0Raw = res.Amount0Out.String()
	data.RangeChart = rangeChartSVG(lowerTick, upperTick, data.CurrentTick, data.NewTick)
	return data
}

// rangeChartSVG renders an inline SVG of price across the tick range, with
// vertical markers at the current tick and the post-swap tick. A marker
// whose tick falls outside the range sticks to the nearest edge.
func rangeChartSVG(lowerTick, upperTick, curTick, nextTick int) template.HTML {
	const (
		width  = 640.0
		height = 180.0
		pad    = 30.0
	)
	span := upperTick - lowerTick
	if span < 1 {
		return ""
	}
	samples := span + 1
	if samples > 240 {
		samples = 240
	}

	minPrice := univ3.TickToPrice(lowerTick)
	maxPrice := univ3.TickToPrice(upperTick)

	xFor := func(tick int) float64 {
		f := float64(tick-lowerTick) / float64(span)
		if f < 0 {
			f = 0
		} else if f > 1 {
			f = 1
		}
		return pad + f*(width-2*pad)
	}
	yFor := func(price float64) float64 {
		f := (price - minPrice) / (maxPrice - minPrice)
		if f < 0 {
			f = 0
		} else if f > 1 {
			f = 1
		}
		return height - pad - f*(height-2*pad)
	}

	var points strings.Builder
	for i := 0; i < samples; i++ {
		tick := lowerTick + i*span/(samples-1)
		fmt.Fprintf(&points, "%.1f,%.1f ", xFor(tick), yFor(univ3.TickToPrice(tick)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%.0f" height="%.0f" xmlns="http://www.w3.org/2000/svg">`, width, height)
	fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="#ccc"/>`,
		pad, pad, width-2*pad, height-2*pad)
	fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="#888" stroke-width="1.5"/>`,
		strings.TrimSpace(points.String()))

	curX := xFor(curTick)
	nextX := xFor(nextTick)
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#2060c0" stroke-width="1.5"/>`,
		curX, pad, curX, height-pad)
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#c03030" stroke-width="1.5" stroke-dasharray="4 2"/>`,
		nextX, pad, nextX, height-pad)
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" fill="#2060c0">tick %d</text>`,
		curX+4, pad+12, curTick)
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" fill="#c03030">tick %d</text>`,
		nextX+4, pad+26, nextTick)
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" fill="#555">%d (%.2f)</text>`,
		pad, height-8, lowerTick, minPrice)
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" fill="#555" text-anchor="end">%d (%.2f)</text>`,
		width-pad, height-8, upperTick, maxPrice)
	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}

var page = template.Must(template.New("firstswap").Parse(`<!DOCTYPE html>
<html>
<head><title>First Swap: Single Range Simulator</title></head>
<body>
<h1>Uniswap V3 "First Swap" Single Range Simulator</h1>
<p>Liquidity <b>L</b> stays constant while a swap moves <b>sqrtP</b>, changing price and tick.</p>

<p>Presets:
<a href="{{.BasePath}}">Book-like feel (price ~5000, large L)</a> |
<a href="{{.BasePath}}?preset=tiny">Tiny pool (big price impact)</a> |
<a href="{{.BasePath}}?preset=huge">Huge pool (tiny price impact)</a>
</p>

<form method="get" action="{{.BasePath}}">
<input type="hidden" name="submitted" value="1">
<fieldset><legend>Pool state</legend>
  Current price ({{.In.Token1Symbol}} per {{.In.Token0Symbol}}):
  <input name="price" value="{{.In.Price}}"><br>
  Liquidity scale log10(L): <input name="llog10" value="{{.In.LiquidityLog10}}"> (6..32)<br>
</fieldset>
<fieldset><legend>Range</legend>
  Set range by:
  <select name="rangemode">
    <option value="price" {{if not .In.RangeByTick}}selected{{end}}>price</option>
    <option value="tick" {{if .In.RangeByTick}}selected{{end}}>tick</option>
  </select><br>
  Lower price: <input name="lower" value="{{.In.LowerPrice}}">
  Upper price: <input name="upper" value="{{.In.UpperPrice}}"> (price mode)<br>
  Lower tick: <input name="ltick" value="{{.In.LowerTick}}">
  Upper tick: <input name="utick" value="{{.In.UpperTick}}"> (tick mode)<br>
</fieldset>
<fieldset><legend>Swap input</legend>
  {{.In.Token1Symbol}} in: <input name="amount1" value="{{.In.Token1In}}"><br>
  <label><input type="checkbox" name="clamp" {{if .In.Clamp}}checked{{end}}> Clamp swap to stay inside range</label><br>
</fieldset>
<fieldset><legend>Tokens</legend>
  Token0 symbol: <input name="sym0" value="{{.In.Token0Symbol}}"> decimals <input name="dec0" value="{{.In.Token0Decimals}}"><br>
  Token1 symbol: <input name="sym1" value="{{.In.Token1Symbol}}"> decimals <input name="dec1" value="{{.In.Token1Decimals}}"><br>
</fieldset>
<button type="submit">Simulate</button>
</form>

{{if .Error}}<p style="color:red">{{.Error}}</p>{{else}}
<h2>Pool state (computed)</h2>
<ul>
<li>Current tick (approx): {{.CurrentTick}}</li>
<li>Current sqrtP (X96): <code>{{.SqrtPCurX96}}</code></li>
<li>Range ticks: [{{.LowerTick}}, {{.UpperTick}}]</li>
</ul>
{{if .OutOfRange}}<p><b>Note:</b> current price is outside the selected range.</p>{{end}}

<h2>Swap result (token1 in &rarr; token0 out)</h2>
{{if .Clamped}}<p><b>Swap was clamped to the range boundary.</b> Amounts reflect the boundary move.</p>{{end}}
<ul>
<li>New price: {{printf "%.6f" .NewPrice}} {{.In.Token1Symbol}}/{{.In.Token0Symbol}}</li>
<li>New tick (approx): {{.NewTick}}</li>
<li>New sqrtP (X96): <code>{{.SqrtPNextX96}}</code></li>
<li>{{.In.Token1Symbol}} in (used): {{printf "%.12f" .Amount1Used}} (raw <code>{{.Amount1Raw}}</code>)</li>
<li>{{.In.Token0Symbol}} out: {{printf "%.12f" .Amount0Out}} (raw <code>{{.Amount0Raw}}</code>)</li>
</ul>
<h2>Price across the range</h2>
{{.RangeChart}}
<p><i>Solid blue marker: current tick. Dashed red marker: tick after the swap.</i></p>

<p><i>Single-range model: L constant; sqrtP increases by amount1_in*Q96/L in the token1-in direction.</i></p>
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
