package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/finbooks/recon-api/internal/auth"
	"github.com/finbooks/recon-api/internal/database"
	"github.com/finbooks/recon-api/internal/ledger"
	"github.com/finbooks/recon-api/internal/rates"
	"github.com/finbooks/recon-api/internal/reconciliation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minInvoices   = 15
	maxInvoices   = 100
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the ledger API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	mu        sync.Mutex
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"setup":     {name: "Setup"},
			"post_move": {name: "Post Move"},
			"residual":  {name: "Get Residual"},
			"reconcile": {name: "Reconcile"},
		},
	}

	// Get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, err
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) record(statKey string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	stats := sc.stats[statKey]
	stats.addDuration(time.Since(start))
	if failed {
		stats.failures++
	}
}

func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		sc.record("auth", start, true)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.record("auth", start, true)
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		sc.record("auth", start, true)
		return "", err
	}

	sc.record("auth", start, false)
	return result.Token, nil
}

// doJSON sends an authenticated request and decodes the data envelope
// into out
func (sc *simulationClient) doJSON(method, path, statKey string, payload, out interface{}) error {
	start := time.Now()

	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			sc.record(statKey, start, true)
			return err
		}
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reqBody)
	if err != nil {
		sc.record(statKey, start, true)
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")
	if method == "POST" {
		req.Header.Set("X-Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.record(statKey, start, true)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		sc.record(statKey, start, true)
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.record(statKey, start, true)
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		var envelope struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			sc.record(statKey, start, true)
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			sc.record(statKey, start, true)
			return fmt.Errorf("failed to decode data: %w, body: %s", err, string(respBody))
		}
	}

	sc.record(statKey, start, false)
	return nil
}

// chartOfAccounts holds the identifiers created during setup
type chartOfAccounts struct {
	CompanyID    string
	Receivable   string
	Revenue      string
	Bank         string
	GainAccount  string
	LossAccount  string
	SaleJournal  string
	BankJournal  string
	ExchJournal  string
	MiscJournal  string
}

// setupChart creates the currencies, company, accounts, journals and
// conversion rates the scenarios post against
func (sc *simulationClient) setupChart() (*chartOfAccounts, error) {
	type idHolder struct {
		CompanyID string `json:"company_id"`
		AccountID string `json:"account_id"`
		JournalID string `json:"journal_id"`
	}

	for _, currency := range []map[string]interface{}{
		{"code": "EUR", "name": "Euro", "decimal_places": 2},
		{"code": "USD", "name": "US Dollar", "decimal_places": 2},
	} {
		if err := sc.doJSON("POST", "/api/v1/ledger/currencies", "setup", currency, nil); err != nil {
			return nil, err
		}
	}

	var company idHolder
	err := sc.doJSON("POST", "/api/v1/ledger/companies", "setup", map[string]interface{}{
		"name":          "Simulated Books SA",
		"currency_code": "EUR",
	}, &company)
	if err != nil {
		return nil, err
	}

	chart := &chartOfAccounts{CompanyID: company.CompanyID}
	accounts := []struct {
		target       *string
		code, name   string
		internalType string
		reconcilable bool
	}{
		{&chart.Receivable, "121000", "Account Receivable", "receivable", true},
		{&chart.Revenue, "400000", "Product Sales", "other", false},
		{&chart.Bank, "101401", "Bank", "liquidity", false},
		{&chart.GainAccount, "744000", "Foreign Exchange Gain", "other", false},
		{&chart.LossAccount, "644000", "Foreign Exchange Loss", "other", false},
	}
	for _, spec := range accounts {
		var account idHolder
		err := sc.doJSON("POST", "/api/v1/ledger/accounts", "setup", map[string]interface{}{
			"company_id":    chart.CompanyID,
			"code":          spec.code,
			"name":          spec.name,
			"internal_type": spec.internalType,
			"reconcilable":  spec.reconcilable,
		}, &account)
		if err != nil {
			return nil, err
		}
		*spec.target = account.AccountID
	}

	journals := []struct {
		target           *string
		code, name, kind string
	}{
		{&chart.SaleJournal, "INV", "Customer Invoices", "sale"},
		{&chart.BankJournal, "BNK", "Bank", "bank"},
		{&chart.ExchJournal, "EXCH", "Exchange Difference", "exchange"},
		{&chart.MiscJournal, "MISC", "Miscellaneous Operations", "general"},
	}
	for _, spec := range journals {
		var journal idHolder
		err := sc.doJSON("POST", "/api/v1/ledger/journals", "setup", map[string]interface{}{
			"company_id": chart.CompanyID,
			"code":       spec.code,
			"name":       spec.name,
			"type":       spec.kind,
		}, &journal)
		if err != nil {
			return nil, err
		}
		*spec.target = journal.JournalID
	}

	err = sc.doJSON("PUT", fmt.Sprintf("/api/v1/ledger/companies/%s/exchange", chart.CompanyID), "setup",
		map[string]interface{}{
			"exchange_journal_id": chart.ExchJournal,
			"gain_account_id":     chart.GainAccount,
			"loss_account_id":     chart.LossAccount,
		}, nil)
	if err != nil {
		return nil, err
	}

	for _, rate := range []map[string]interface{}{
		{"currency_code": "USD", "rate": "1.10", "valid_from": "2026-01-01"},
		{"currency_code": "USD", "rate": "1.20", "valid_from": "2026-02-01"},
	} {
		if err := sc.doJSON("POST", "/api/v1/ledger/rates", "setup", rate, nil); err != nil {
			return nil, err
		}
	}
	return chart, nil
}

type lineRef struct {
	LineID    string `json:"line_id"`
	AccountID string `json:"account_id"`
}

type moveRef struct {
	Move struct {
		MoveID string `json:"move_id"`
	} `json:"move"`
	Lines []lineRef `json:"lines"`
}

// postMove posts a journal entry and returns the line on the wanted
// account
func (sc *simulationClient) postMove(payload map[string]interface{}, accountID string) (string, error) {
	var move moveRef
	if err := sc.doJSON("POST", "/api/v1/ledger/moves", "post_move", payload, &move); err != nil {
		return "", err
	}
	for _, line := range move.Lines {
		if line.AccountID == accountID {
			return line.LineID, nil
		}
	}
	return "", fmt.Errorf("move %s has no line on account %s", move.Move.MoveID, accountID)
}

type reconcileRef struct {
	Partials      []json.RawMessage `json:"partials"`
	FullReconcile *struct {
		FullReconcileID string `json:"full_reconcile_id"`
		ExchangeMoveID  string `json:"exchange_move_id"`
	} `json:"full_reconcile"`
}

func (sc *simulationClient) reconcile(lineIDs []string) (*reconcileRef, error) {
	var result reconcileRef
	err := sc.doJSON("POST", "/api/v1/internal/reconciliation/reconcile", "reconcile",
		map[string]interface{}{"line_ids": lineIDs}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) getResidual(lineID string) error {
	return sc.doJSON("GET", fmt.Sprintf("/api/v1/ledger/lines/%s/residual", lineID), "residual", nil, nil)
}

// scenarioResult summarizes what one invoice/payment cycle produced
type scenarioResult struct {
	partials     int
	full         bool
	exchangeMove bool
	err          error
}

// runScenario posts one invoice plus its payments and reconciles them.
// Even-numbered scenarios stay in company currency and settle in two
// installments; odd-numbered ones invoice in USD at the January rate and
// get paid at the February rate, so closing them books an exchange
// difference.
func (sc *simulationClient) runScenario(chart *chartOfAccounts, workerID, seq int) scenarioResult {
	partner := fmt.Sprintf("PARTNER_%d", workerID)
	foreign := seq%2 == 1

	var invoiceLine string
	var paymentLines []string
	var err error

	if foreign {
		// 120 USD invoiced at 1.20, paid at 1.10
		invoiceLine, err = sc.postMove(map[string]interface{}{
			"journal_id": chart.SaleJournal,
			"ref":        fmt.Sprintf("INV/%d/%d", workerID, seq),
			"date":       "2026-02-10",
			"lines": []map[string]interface{}{
				{"account_id": chart.Receivable, "partner_id": partner, "debit": "100.00",
					"currency_code": "USD", "amount_currency": "120.00"},
				{"account_id": chart.Revenue, "partner_id": partner, "credit": "100.00"},
			},
		}, chart.Receivable)
		if err != nil {
			return scenarioResult{err: err}
		}
		paymentLine, pErr := sc.postMove(map[string]interface{}{
			"journal_id": chart.BankJournal,
			"ref":        fmt.Sprintf("PAY/%d/%d", workerID, seq),
			"date":       "2026-03-01",
			"lines": []map[string]interface{}{
				{"account_id": chart.Bank, "partner_id": partner, "debit": "109.09"},
				{"account_id": chart.Receivable, "partner_id": partner, "credit": "109.09",
					"currency_code": "USD", "amount_currency": "-120.00"},
			},
		}, chart.Receivable)
		if pErr != nil {
			return scenarioResult{err: pErr}
		}
		paymentLines = append(paymentLines, paymentLine)
	} else {
		amount := float64((rand.Intn(900) + 100) * 4) // divisible into exact installments
		invoiceLine, err = sc.postMove(map[string]interface{}{
			"journal_id": chart.SaleJournal,
			"ref":        fmt.Sprintf("INV/%d/%d", workerID, seq),
			"date":       "2026-01-15",
			"lines": []map[string]interface{}{
				{"account_id": chart.Receivable, "partner_id": partner, "debit": fmt.Sprintf("%.2f", amount)},
				{"account_id": chart.Revenue, "partner_id": partner, "credit": fmt.Sprintf("%.2f", amount)},
			},
		}, chart.Receivable)
		if err != nil {
			return scenarioResult{err: err}
		}
		for _, share := range []float64{0.25, 0.75} {
			paymentLine, pErr := sc.postMove(map[string]interface{}{
				"journal_id": chart.BankJournal,
				"ref":        fmt.Sprintf("PAY/%d/%d", workerID, seq),
				"date":       "2026-02-15",
				"lines": []map[string]interface{}{
					{"account_id": chart.Bank, "partner_id": partner, "debit": fmt.Sprintf("%.2f", amount*share)},
					{"account_id": chart.Receivable, "partner_id": partner, "credit": fmt.Sprintf("%.2f", amount*share)},
				},
			}, chart.Receivable)
			if pErr != nil {
				return scenarioResult{err: pErr}
			}
			paymentLines = append(paymentLines, paymentLine)
		}
	}

	if err := sc.getResidual(invoiceLine); err != nil {
		log.Warn().Err(err).Msg("residual lookup failed")
	}

	result, err := sc.reconcile(append([]string{invoiceLine}, paymentLines...))
	if err != nil {
		return scenarioResult{err: err}
	}
	out := scenarioResult{partials: len(result.Partials)}
	if result.FullReconcile != nil {
		out.full = true
		out.exchangeMove = result.FullReconcile.ExchangeMoveID != ""
	}
	return out
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the reconciliation simulation
// It starts a local API server and replays invoice/payment cycles from
// multiple concurrent workers
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	chart, err := simClient.setupChart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up chart of accounts")
	}

	targetInvoices := rand.Intn(maxInvoices-minInvoices) + minInvoices
	log.Info().Int("target_invoices", targetInvoices).Msg("Starting simulation")

	resultsChan := make(chan scenarioResult, targetInvoices)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for seq := 0; seq < targetInvoices/numWorkers; seq++ {
				resultsChan <- simClient.runScenario(chart, workerID, seq)
				// Random sleep between cycles
				time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(resultsChan)

	stats := struct {
		Cycles        int
		Partials      int
		Fulls         int
		ExchangeMoves int
		Failures      int
		StartTime     time.Time
	}{StartTime: time.Now()}

	for result := range resultsChan {
		stats.Cycles++
		if result.err != nil {
			log.Error().Err(result.err).Msg("scenario failed")
			stats.Failures++
			continue
		}
		stats.Partials += result.partials
		if result.full {
			stats.Fulls++
		}
		if result.exchangeMove {
			stats.ExchangeMoves++
		}
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("RECONCILIATION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Cycle Statistics
----------------
Invoice Cycles:    %d
Partials Created:  %d
Full Reconciles:   %d
Exchange Moves:    %d
Failures:          %d
Duration:          %v
`, stats.Cycles, stats.Partials, stats.Fulls, stats.ExchangeMoves, stats.Failures,
		duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))

	successRate := float64(stats.Cycles-stats.Failures) / float64(stats.Cycles) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("cycles", stats.Cycles).
		Int("full_reconciles", stats.Fulls).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the ledger API server
// Sets up all required services, handlers and routes
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService("recon-secret-key")
	ratesService := rates.NewService(db)
	ledgerService := ledger.NewService(db, ratesService)
	reconciliationService := reconciliation.NewService(db)

	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	ratesHandlers := rates.NewGinHandlers(ratesService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	reconciliationHandlers := reconciliation.NewGinHandlers(reconciliationService)

	// Setup routes
	setupRoutes(router, authHandlers, ledgerHandlers, ratesHandlers, reconciliationHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality without auth middleware, matching the
// single-process simulation setup
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	ratesHandlers *rates.GinHandlers,
	reconciliationHandlers *reconciliation.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Ledger routes
		ledgerRoutes := v1.Group("/ledger")
		{
			ledgerRoutes.POST("/companies", ledgerHandlers.CreateCompanyHandler())
			ledgerRoutes.PUT("/companies/:company_id/exchange", ledgerHandlers.ConfigureExchangeHandler())
			ledgerRoutes.POST("/currencies", ledgerHandlers.CreateCurrencyHandler())
			ledgerRoutes.PUT("/currencies/:code", ledgerHandlers.UpdateCurrencyHandler())
			ledgerRoutes.POST("/accounts", ledgerHandlers.CreateAccountHandler())
			ledgerRoutes.POST("/journals", ledgerHandlers.CreateJournalHandler())
			ledgerRoutes.POST("/rates", ratesHandlers.SetRateHandler())
			ledgerRoutes.GET("/rates/:currency_code", ratesHandlers.GetRatesHandler())
			ledgerRoutes.POST("/moves", ledgerHandlers.PostMoveHandler())
			ledgerRoutes.GET("/moves/:move_id", ledgerHandlers.GetMoveHandler())
			ledgerRoutes.GET("/lines/:line_id/residual", reconciliationHandlers.GetResidualHandler())
		}

		// Internal routes
		internal := v1.Group("/internal")
		{
			internal.POST("/reconciliation/reconcile", reconciliationHandlers.ReconcileHandler())
			internal.POST("/reconciliation/unreconcile", reconciliationHandlers.UnreconcileHandler())
			internal.GET("/reconciliation/full/:full_reconcile_id", reconciliationHandlers.GetFullReconcileHandler())
		}
	}
}
