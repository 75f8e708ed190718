package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/config"
	"github.com/md-rashed-zaman/tourbook/libs/runtime"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/catalog"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/session"
)

func main() {
	dotenvErr := runtime.LoadDotEnv()
	var (
		product  = flag.String("product", runtime.Getenv("PRODUCT_ID", ""), "product id to query")
		file     = flag.String("catalog-file", runtime.Getenv("CATALOG_FILE", ""), "YAML catalogue file")
		baseURL  = flag.String("base-url", runtime.Getenv("CATALOG_BASE_URL", ""), "booking backend base url")
		tz       = flag.String("tz", runtime.Getenv("AVAILABILITY_TIMEZONE", "Local"), "viewer time zone")
		debounce = flag.Duration("debounce", session.DefaultDebounce, "input debounce")
	)
	flag.Parse()

	if strings.TrimSpace(*product) == "" {
		fatal("PRODUCT_ID is required")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fatal(err.Error())
	}

	logger := runtime.NewLogger("availability-probe")
	if dotenvErr != nil {
		logger.Warn(".env load failed", "err", dotenvErr)
	}
	var source catalog.Source
	switch {
	case *file != "":
		static, err := catalog.LoadStatic(*file, loc)
		if err != nil {
			fatal(err.Error())
		}
		source = static
	case *baseURL != "":
		source = catalog.NewClient(*baseURL, loc, logger)
	default:
		fatal("one of CATALOG_FILE or CATALOG_BASE_URL is required")
	}

	engineCfg := availability.DefaultConfig()
	engineCfg.Location = loc
	if h, err := config.Float("DEFAULT_CUTOFF_HOURS", engineCfg.DefaultCutoffHours); err == nil {
		engineCfg.DefaultCutoffHours = h
	}
	engine := availability.New(source, engineCfg, logger)

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	sess := session.New(*product, engine, logger,
		session.WithDebounce(*debounce),
		session.OnResult(func(res availability.Result) {
			_ = out.Encode(summarize(res))
		}),
	)
	defer sess.Close()

	fmt.Fprintln(os.Stderr, "enter: <yyyy-mm-dd> <adults> <children> [package]  (ctrl-d to quit)")
	scheduled := false
	err = readSelections(os.Stdin, loc, func(sel model.Selection) bool {
		ok := sess.Submit(sel)
		scheduled = scheduled || ok
		return ok
	})
	if err != nil {
		fatal(err.Error())
	}
	if scheduled && !awaitResult(sess.Current, *debounce+engineCfg.LookupTimeout+time.Second, 20*time.Millisecond) {
		logger.Warn("last availability query did not finish before exit")
	}
}

// awaitResult polls current until it reports a final state or timeout elapses.
func awaitResult(current func() availability.Result, timeout, poll time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		if current().State.Terminal() {
			return true
		}
		select {
		case <-deadline.C:
			return current().State.Terminal()
		case <-tick.C:
		}
	}
}

func readSelections(r io.Reader, loc *time.Location, submit func(model.Selection) bool) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sel, err := parseLine(line, loc)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		submit(sel)
	}
	return sc.Err()
}

func parseLine(line string, loc *time.Location) (model.Selection, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || len(fields) > 4 {
		return model.Selection{}, fmt.Errorf("expected 3 or 4 fields, got %d", len(fields))
	}
	date, err := model.ParseDate(fields[0], loc)
	if err != nil {
		return model.Selection{}, fmt.Errorf("date: %w", err)
	}
	adults, err := strconv.Atoi(fields[1])
	if err != nil || adults < 0 {
		return model.Selection{}, fmt.Errorf("adults must be a non-negative integer")
	}
	children, err := strconv.Atoi(fields[2])
	if err != nil || children < 0 {
		return model.Selection{}, fmt.Errorf("children must be a non-negative integer")
	}
	sel := model.Selection{Date: date, Adults: adults, Children: children}
	if len(fields) == 4 {
		sel.PackageID = fields[3]
	}
	return sel, nil
}

type slotLine struct {
	Package string   `json:"package"`
	Slot    int      `json:"slot"`
	Times   []string `json:"times"`
	Price   string   `json:"price"`
}

type summary struct {
	State   string     `json:"state"`
	Date    string     `json:"date"`
	Party   string     `json:"party"`
	Reason  string     `json:"reason,omitempty"`
	Next    string     `json:"next_available,omitempty"`
	Options []slotLine `json:"options,omitempty"`
}

func summarize(res availability.Result) summary {
	s := summary{
		State:  res.State.String(),
		Date:   res.Date,
		Party:  fmt.Sprintf("%d adults, %d children", res.Adults, res.Children),
		Reason: res.Message,
		Next:   res.NextAvailableDate,
	}
	for _, p := range res.Packages {
		for _, slot := range p.Slots {
			s.Options = append(s.Options, slotLine{
				Package: p.PackageID,
				Slot:    slot.Index,
				Times:   slot.BookableTimes,
				Price:   fmt.Sprintf("%.2f %s", slot.Price.Total, slot.Price.Currency),
			})
		}
	}
	return s
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
