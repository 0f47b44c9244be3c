// The poolmanager app simulates the periphery "manager contract" flow:
// approve, mint via callback, swap via callback. Each browser session
// gets its own isolated World so users can experiment freely.
package main

import (
	"fmt"
	"html/template"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/v3labs/demohub/applib"
	"github.com/v3labs/demohub/applib/httputils"
	"github.com/v3labs/demohub/applib/sessions"
	"github.com/v3labs/demohub/apps/poolmanager/sim"
	"github.com/v3labs/demohub/univ3"
)

const version = "1.0.0"

const worldKey = "world"

type server struct {
	app      *applib.Application
	sessions *sessions.Manager
}

func worldFromSession(session *sessions.Session) *sim.World {
	return session.GetOrCreate(worldKey, func() any { return sim.NewWorld() }).(*sim.World)
}

type balanceRow struct {
	Address string
	ETH     string
	USDC    string
}

type pageData struct {
	BasePath string
	User     string
	Notice   string
	Error    string

	Balances      []balanceRow
	ETHAllowance  string
	USDCAllowance string

	Price      string
	Tick       int
	LowerTick  int
	UpperTick  int
	Liquidity  string
	LowerPrice float64
	UpperPrice float64

	Events []string
}

func (s *server) buildPage(w *sim.World, notice, errMsg string) pageData {
	eth := w.Tokens["ETH"]
	usdc := w.Tokens["USDC"]

	var balances []balanceRow
	for _, addr := range []string{w.User, w.Manager.Address, w.Pool.Address} {
		balances = append(balances, balanceRow{
			Address: addr,
			ETH:     fmt.Sprintf("%.6f", eth.Human(eth.BalanceOf(addr))),
			USDC:    fmt.Sprintf("%.2f", usdc.Human(usdc.BalanceOf(addr))),
		})
	}

	info := w.Pool.Info()
	return pageData{
		BasePath:      s.app.BasePath(),
		User:          w.User,
		Notice:        notice,
		Error:         errMsg,
		Balances:      balances,
		ETHAllowance:  fmt.Sprintf("%.6f", eth.Human(eth.Allowance(w.User, w.Manager.Address))),
		USDCAllowance: fmt.Sprintf("%.2f", usdc.Human(usdc.Allowance(w.User, w.Manager.Address))),
		Price:         fmt.Sprintf("%.6f", info.Price),
		Tick:          info.Tick,
		LowerTick:     info.LowerTick,
		UpperTick:     info.UpperTick,
		Liquidity:     info.Liquidity.String(),
		LowerPrice:    univ3.TickToPrice(info.LowerTick),
		UpperPrice:    univ3.TickToPrice(info.UpperTick),
		Events:        w.Log.Recent(80),
	}
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(w, r)
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	world := worldFromSession(session)
	world.Lock()
	data := s.buildPage(world, "", "")
	world.Unlock()
	httputils.RenderTemplate(w, page, data)
}

// handleAction processes the form posts: approve, mint, swap, reset.
func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(w, r)
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	// Concurrent requests on the same session share one World; hold its
	// lock across the action and the page snapshot.
	world := worldFromSession(session)
	world.Lock()
	if err := r.ParseForm(); err != nil {
		data := s.buildPage(world, "", "bad form input")
		world.Unlock()
		httputils.RenderTemplate(w, page, data)
		return
	}

	var notice, errMsg string
	switch r.FormValue("action") {
	case "approve":
		notice, errMsg = s.doApprove(world, r)
	case "mint":
		notice, errMsg = s.doMint(world, r)
	case "swap":
		notice, errMsg = s.doSwap(world, r)
	case "reset":
		world.Unlock()
		world = sim.NewWorld()
		world.Lock()
		session.SetValue(worldKey, world)
		notice = "Demo state reset."
	default:
		errMsg = "unknown action"
	}

	data := s.buildPage(world, notice, errMsg)
	world.Unlock()
	httputils.RenderTemplate(w, page, data)
}

func (s *server) doApprove(w *sim.World, r *http.Request) (string, string) {
	symbol := r.FormValue("token")
	token, ok := w.Tokens[symbol]
	if !ok {
		return "", "unknown token " + symbol
	}
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil || amount < 0 {
		return "", "invalid approve amount"
	}
	token.Approve(w.User, w.Manager.Address, token.Raw(amount))
	w.Log.Append("Approve: %s approved %.2f %s to %s", w.User, amount, symbol, w.Manager.Address)
	return fmt.Sprintf("Approved %.2f %s.", amount, symbol), ""
}

func (s *server) doMint(w *sim.World, r *http.Request) (string, string) {
	lowerPrice, err1 := strconv.ParseFloat(r.FormValue("lower"), 64)
	upperPrice, err2 := strconv.ParseFloat(r.FormValue("upper"), 64)
	lLog10, err3 := strconv.Atoi(r.FormValue("llog10"))
	if err1 != nil || err2 != nil || err3 != nil || lowerPrice <= 0 || upperPrice <= 0 {
		return "", "invalid mint parameters"
	}
	if lLog10 < 1 || lLog10 > 30 {
		return "", "liquidity scale must be between 1 and 30"
	}

	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(lLog10)), nil)
	_, _, err := w.Manager.Mint(w.Pool, w.User,
		univ3.PriceToTick(lowerPrice), univ3.PriceToTick(upperPrice), liquidity)
	if err != nil {
		return "", "Mint failed: " + err.Error()
	}
	return "Mint successful (callback paid the pool).", ""
}

func (s *server) doSwap(w *sim.World, r *http.Request) (string, string) {
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil || amount < 0 {
		return "", "invalid swap amount"
	}
	usdc := w.Tokens["USDC"]
	_, _, err = w.Manager.Swap(w.Pool, w.User, w.User, usdc.Raw(amount))
	if err != nil {
		return "", "Swap failed: " + err.Error()
	}
	return "Swap successful.", ""
}

var page = template.Must(template.New("poolmanager").Parse(`<!DOCTYPE html>
<html>
<head><title>Manager Contract Simulator</title></head>
<body>
<h1>Manager Contract Simulator (Mint + Swap + Callbacks)</h1>
<p>The manager forwards mint/swap to the pool and pays it via callbacks
using transferFrom semantics, so you must approve the manager first.</p>

{{if .Notice}}<p style="color:green">{{.Notice}}</p>{{end}}
{{if .Error}}<p style="color:red">{{.Error}}</p>{{end}}

<h2>Balances</h2>
<table border="1" cellpadding="4">
<tr><th>address</th><th>ETH</th><th>USDC</th></tr>
{{range .Balances}}<tr><td>{{.Address}}</td><td>{{.ETH}}</td><td>{{.USDC}}</td></tr>{{end}}
</table>

<h2>Allowances ({{.User}} &rarr; Manager)</h2>
<p>ETH: {{.ETHAllowance}} &nbsp; USDC: {{.USDCAllowance}}</p>

<h2>Pool state</h2>
<ul>
<li>Price: {{.Price}} USDC/ETH (tick {{.Tick}})</li>
<li>Range ticks: [{{.LowerTick}}, {{.UpperTick}}] (&asymp; {{printf "%.2f" .LowerPrice}} .. {{printf "%.2f" .UpperPrice}})</li>
<li>Active liquidity L: {{.Liquidity}}</li>
</ul>

<h2>1) Approve (User &rarr; Manager)</h2>
<form method="post" action="{{.BasePath}}action">
<input type="hidden" name="action" value="approve">
Token: <select name="token"><option>USDC</option><option>ETH</option></select>
Amount: <input name="amount" value="100000">
<button type="submit">Approve</button>
</form>

<h2>2) Mint via Manager</h2>
<form method="post" action="{{.BasePath}}action">
<input type="hidden" name="action" value="mint">
Lower price: <input name="lower" value="4545">
Upper price: <input name="upper" value="5500">
log10(L): <input name="llog10" value="10">
<button type="submit">Mint</button>
</form>

<h2>3) Swap via Manager (USDC in &rarr; ETH out)</h2>
<form method="post" action="{{.BasePath}}action">
<input type="hidden" name="action" value="swap">
USDC in: <input name="amount" value="42">
<button type="submit">Swap</button>
</form>

<form method="post" action="{{.BasePath}}action">
<input type="hidden" name="action" value="reset">
<button type="submit">Reset demo state</button>
</form>

<h2>Event log</h2>
{{if .Events}}<pre>{{range .Events}}{{.}}
{{end}}</pre>{{else}}<p>No events yet. Approve, then mint, then swap.</p>{{end}}
</body>
</html>
`))

func main() {
	app, err := applib.Init(version)
	if err != nil {
		log.Fatal(err)
	}
	sessionManager, err := sessions.NewManager(12 * time.Hour)
	if err != nil {
		log.Fatal(err)
	}

	s := &server{app: app, sessions: sessionManager}
	app.Router().HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	app.Router().HandleFunc("/action", s.handleAction).Methods(http.MethodPost)

	app.Serve()
}
