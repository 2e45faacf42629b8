package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/models"
	"bus-timetable-portal/internal/registry"
	"bus-timetable-portal/internal/scraper"
)

// One-shot verification of the full scraping pipeline against the live
// site: topology, timetable, cache and registry persistence. Run it
// before deploying after the source site changes its markup.

type CheckResult struct {
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Details   any       `json:"details,omitempty"`
}

type PoCResults struct {
	MasterURL      string        `json:"master_url"`
	Results        []CheckResult `json:"results"`
	OverallSuccess bool          `json:"overall_success"`
	ExecutedAt     time.Time     `json:"executed_at"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	masterURL := os.Getenv("POC_MASTER_URL")
	if masterURL == "" {
		masterURL = "https://www.ratbv.ro/afisaje/6-dus/"
		log.Printf("POC_MASTER_URL not set, using default: %s", masterURL)
	}

	results := &PoCResults{
		MasterURL:  masterURL,
		ExecutedAt: time.Now(),
	}

	log.Println("============================================")
	log.Println("Scrape PoC: pipeline verification start")
	log.Println("============================================")

	registryPath := filepath.Join(os.TempDir(), fmt.Sprintf("poc-routes-%d.json", os.Getpid()))
	defer os.Remove(registryPath)
	store := registry.New(registryPath)

	factory := browser.NewFactory(browser.Config{
		ExecPath: os.Getenv("CHROME_PATH"),
	})
	svc := scraper.NewService(factory, store, scraper.Config{})

	// Check 1: topology extraction. The remaining checks need the
	// station list, so a failure here aborts the run.
	check1, topo := checkTopology(svc, masterURL)
	results.Results = append(results.Results, check1)

	if !check1.Success {
		log.Println("[ERROR] topology extraction failed, cannot proceed with remaining checks")
		results.OverallSuccess = false
		saveResults(results)
		os.Exit(1)
	}

	first := topo.Stations[0]
	route := models.Route{
		ID:          scraper.RouteID(topo.LineNumber, first.Slug, topo.Direction),
		LineNumber:  topo.LineNumber,
		Direction:   topo.Direction,
		StationSlug: first.Slug,
		StationName: first.Name,
		SourceURL:   first.TimetableURL,
	}
	route.FirstStation, route.LastStation = topo.Endpoints()

	if err := store.Create(route); err != nil {
		log.Fatalf("[ERROR] failed to seed poc registry: %v", err)
	}

	// Check 2: timetable extraction for the first station.
	check2 := checkTimetable(svc, &route)
	results.Results = append(results.Results, check2)

	// Check 3: a second fetch inside the TTL must come from the cache.
	check3 := checkCacheHit(svc, store, route.ID)
	results.Results = append(results.Results, check3)

	// Check 4: the snapshot survives a registry reload from disk.
	check4 := checkPersistence(registryPath, route.ID)
	results.Results = append(results.Results, check4)

	results.OverallSuccess = true
	for _, result := range results.Results {
		if !result.Success {
			results.OverallSuccess = false
			break
		}
	}

	log.Println("\n============================================")
	log.Println("PoC result summary")
	log.Println("============================================")
	for i, result := range results.Results {
		status := "✅ PASS"
		if !result.Success {
			status = "❌ FAIL"
		}
		log.Printf("%d. %s: %s", i+1, result.Name, status)
		log.Printf("   message: %s", result.Message)
	}

	log.Println("\n============================================")
	if results.OverallSuccess {
		log.Println("✅ PoC verification passed")
	} else {
		log.Println("❌ PoC verification failed")
	}
	log.Println("============================================")

	saveResults(results)

	if !results.OverallSuccess {
		os.Exit(1)
	}
}

// Check 1: the master page yields a line name and a non-empty,
// ordered station list.
func checkTopology(svc *scraper.Service, masterURL string) (CheckResult, *models.LineTopology) {
	result := CheckResult{
		Name:      "topology extraction",
		Timestamp: time.Now(),
	}

	log.Println("\n[Check 1] topology extraction...")

	topo, err := svc.FetchLineTopology(masterURL)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("topology scrape failed: %v", err)
		log.Printf("  ❌ %s", result.Message)
		return result, nil
	}

	if topo.LineName == "" || len(topo.Stations) == 0 {
		result.Success = false
		result.Message = fmt.Sprintf("incomplete topology: name=%q stations=%d", topo.LineName, len(topo.Stations))
		log.Printf("  ❌ %s", result.Message)
		return result, nil
	}

	firstName, lastName := topo.Endpoints()
	result.Success = true
	result.Message = fmt.Sprintf("line %q with %d stations (%s -> %s)", topo.LineName, len(topo.Stations), firstName, lastName)
	result.Details = map[string]any{
		"line_name":     topo.LineName,
		"line_number":   topo.LineNumber,
		"direction":     topo.Direction,
		"station_count": len(topo.Stations),
		"first_station": firstName,
		"last_station":  lastName,
	}
	log.Printf("  ✅ %s", result.Message)

	return result, topo
}

// Check 2: the first station's timetable is non-empty and every entry
// parses as an hour and minute.
func checkTimetable(svc *scraper.Service, route *models.Route) CheckResult {
	result := CheckResult{
		Name:      "timetable extraction",
		Timestamp: time.Now(),
	}

	log.Println("\n[Check 2] timetable extraction...")
	log.Printf("  station: %s (%s)", route.StationName, route.SourceURL)

	fetched, err := svc.FetchTimetable(route)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("timetable scrape failed: %v", err)
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	if len(fetched.Times) == 0 {
		result.Success = false
		result.Message = "timetable scrape returned no departures"
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	malformed := 0
	for _, entry := range fetched.Times {
		if _, err := models.ParseTimeEntry(entry); err != nil {
			malformed++
			log.Printf("  malformed entry %q: %v", entry, err)
		}
	}
	if malformed > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("%d of %d entries malformed", malformed, len(fetched.Times))
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("%d departures (%s .. %s)", len(fetched.Times), fetched.Times[0], fetched.Times[len(fetched.Times)-1])
	result.Details = map[string]any{
		"station":    route.StationName,
		"time_count": len(fetched.Times),
		"first":      fetched.Times[0],
		"last":       fetched.Times[len(fetched.Times)-1],
	}
	log.Printf("  ✅ %s", result.Message)

	return result
}

// Check 3: an immediate second fetch must be answered from the cache
// without another browser session.
func checkCacheHit(svc *scraper.Service, store *registry.Registry, routeID string) CheckResult {
	result := CheckResult{
		Name:      "cache round-trip",
		Timestamp: time.Now(),
	}

	log.Println("\n[Check 3] cache round-trip...")

	route, err := store.FindByID(routeID)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("route lookup failed: %v", err)
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	fetched, err := svc.FetchTimetable(route)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("second fetch failed: %v", err)
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	if !fetched.ServedFromCache {
		result.Success = false
		result.Message = "second fetch inside the TTL was not served from cache"
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("served from cache, age %dms", fetched.Age.Milliseconds())
	result.Details = map[string]any{
		"age_ms":     fetched.Age.Milliseconds(),
		"time_count": len(fetched.Times),
	}
	log.Printf("  ✅ %s", result.Message)

	return result
}

// Check 4: a fresh registry instance reading the same file sees the
// route with its snapshot intact.
func checkPersistence(registryPath, routeID string) CheckResult {
	result := CheckResult{
		Name:      "registry persistence",
		Timestamp: time.Now(),
	}

	log.Println("\n[Check 4] registry persistence...")

	reloaded := registry.New(registryPath)
	route, err := reloaded.FindByID(routeID)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("reload lookup failed: %v", err)
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	if route.Cache == nil || len(route.Cache.BusTimes) == 0 {
		result.Success = false
		result.Message = "reloaded route has no cached snapshot"
		log.Printf("  ❌ %s", result.Message)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("route %s reloaded with %d cached departures", route.ID, len(route.Cache.BusTimes))
	result.Details = map[string]any{
		"route_id":     route.ID,
		"cached_count": len(route.Cache.BusTimes),
		"captured_at":  route.Cache.CapturedAt,
	}
	log.Printf("  ✅ %s", result.Message)

	return result
}

func saveResults(results *PoCResults) {
	filename := fmt.Sprintf("poc-results-%s.json", results.ExecutedAt.Format("20060102-150405"))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		log.Printf("[ERROR] Failed to marshal results: %v", err)
		return
	}

	err = os.WriteFile(filename, data, 0644)
	if err != nil {
		log.Printf("[ERROR] Failed to write results file: %v", err)
		return
	}

	log.Printf("\nresults saved: %s", filename)
}
