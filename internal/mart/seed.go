package mart

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/lendscope-labs/lendscope/internal/catalog"
)

// SeedConfig controls the synthetic demo data. The same Seed and Now
// always produce the same rows.
type SeedConfig struct {
	// Days of event history to generate, ending yesterday.
	Days int
	// Seed for the random source.
	Seed int64
	// Now anchors the history window. Defaults to time.Now().
	Now time.Time
}

// SeedStats reports what Seed inserted.
type SeedStats struct {
	Events       int
	ForecastRows int
}

const (
	defaultSeedDays = 540
	defaultSeedSeed = 42
)

// Seed fills a migrated mart with deterministic synthetic acquisition
// events and forecast rows, replacing whatever rows are there. Dimension
// values come from the catalog's seed allow-lists so generated data always
// validates.
func Seed(ctx context.Context, db *sql.DB, cfg SeedConfig) (SeedStats, error) {
	if cfg.Days <= 0 {
		cfg.Days = defaultSeedDays
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultSeedSeed
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	end := time.Date(cfg.Now.Year(), cfg.Now.Month(), cfg.Now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -cfg.Days)
	rng := rand.New(rand.NewSource(cfg.Seed))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return SeedStats{}, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Re-seeding replaces the previous demo data; loan_id is a primary key.
	for _, table := range []string{catalog.TableEvents, catalog.TableForecast} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return SeedStats{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	var stats SeedStats
	if stats.Events, err = seedEvents(ctx, tx, rng, start, end); err != nil {
		return SeedStats{}, err
	}
	if stats.ForecastRows, err = seedForecast(ctx, tx, rng, start, end); err != nil {
		return SeedStats{}, err
	}

	if err := tx.Commit(); err != nil {
		return SeedStats{}, fmt.Errorf("commit seed transaction: %w", err)
	}
	return stats, nil
}

func seedEvents(ctx context.Context, tx *sql.Tx, rng *rand.Rand, start, end time.Time) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cps_tb (
			loan_id, app_create_d, prod_type, repeat_type, channel, grade, term,
			offered_flag, website_complete_flag,
			app_submit_d, app_submit_amnt,
			cr_appr_flag, apps_approved_d, apps_approved_amnt,
			issued_flag, issued_d, issued_amnt,
			cr_fico, cr_fico_band, a_income, cr_dti, purpose,
			interest_rate, offer_apr, origination_fee
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare event insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	channels := catalog.SeedAllowList("channel")
	grades := catalog.SeedAllowList("grade")
	prodTypes := catalog.SeedAllowList("prod_type")
	repeatTypes := catalog.SeedAllowList("repeat_type")
	terms := catalog.SeedAllowList("term")
	purposes := catalog.SeedAllowList("purpose")

	seq := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		// Volume breathes weekly with a mild upward drift.
		base := 18 + 6*math.Sin(2*math.Pi*float64(day.YearDay())/7)
		n := int(base) + rng.Intn(8)
		for i := 0; i < n; i++ {
			seq++

			gradeIdx := rng.Intn(len(grades))
			fico := 560 + rng.Intn(280)
			apr := round2(8 + float64(gradeIdx)*3.5 + rng.Float64()*3)
			submitAmt := round2(2000 + rng.Float64()*43000)

			offered := rng.Float64() < 0.85
			completed := rng.Float64() < 0.9

			var (
				submitDate, approvedDate, issuedDate any
				submitAmnt, approvedAmnt, issuedAmnt any
				origFee                              any
				apprFlag, issuedFlag                 int
			)
			if completed {
				submitDate = day.Format(dateLayout)
				submitAmnt = submitAmt
				if offered && rng.Float64() < 0.42 {
					apprFlag = 1
					apprAmt := round2(submitAmt * (0.75 + 0.25*rng.Float64()))
					approvedDate = day.AddDate(0, 0, 1+rng.Intn(3)).Format(dateLayout)
					approvedAmnt = apprAmt
					if rng.Float64() < 0.55 {
						issuedFlag = 1
						issuedDate = day.AddDate(0, 0, 2+rng.Intn(5)).Format(dateLayout)
						issuedAmnt = apprAmt
						origFee = round2(apprAmt * (0.01 + 0.04*rng.Float64()))
					}
				}
			}

			if _, err := stmt.ExecContext(ctx,
				fmt.Sprintf("LS-%08d", seq),
				day.Format(dateLayout),
				pick(rng, prodTypes),
				pick(rng, repeatTypes),
				pick(rng, channels),
				grades[gradeIdx],
				pick(rng, terms),
				boolFlag(offered),
				boolFlag(completed),
				submitDate,
				submitAmnt,
				apprFlag,
				approvedDate,
				approvedAmnt,
				issuedFlag,
				issuedDate,
				issuedAmnt,
				fico,
				ficoBand(fico),
				round2(25000+rng.Float64()*155000),
				round2(5+rng.Float64()*40),
				pick(rng, purposes),
				round2(apr-1.5-rng.Float64()),
				apr,
				origFee,
			); err != nil {
				return 0, fmt.Errorf("insert event %d: %w", seq, err)
			}
		}
	}
	return seq, nil
}

func seedForecast(ctx context.Context, tx *sql.Tx, rng *rand.Rand, start, end time.Time) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_df (
			date, prod_type, repeat_type, channel, grade, term,
			forecast_app_submits, forecast_apps_approved, forecast_issuance,
			outlook_app_submits, outlook_apps_approved, outlook_issuance,
			actual_app_submits, actual_apps_approved, actual_issuance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare forecast insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	channels := catalog.SeedAllowList("channel")
	grades := catalog.SeedAllowList("grade")
	prodTypes := catalog.SeedAllowList("prod_type")
	repeatTypes := catalog.SeedAllowList("repeat_type")
	terms := catalog.SeedAllowList("term")

	rows := 0
	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for ; !month.After(end); month = month.AddDate(0, 1, 0) {
		for ci, channel := range channels {
			// Channel scale is stable month to month so gaps are about
			// performance, not mix shift.
			scale := 0.4 + 0.2*float64(ci)

			submits := round2((400000 + rng.Float64()*150000) * scale)
			approved := round2(submits * (0.35 + 0.1*rng.Float64()))
			issuance := round2(approved * (0.5 + 0.1*rng.Float64()))

			if _, err := stmt.ExecContext(ctx,
				month.Format(dateLayout),
				pick(rng, prodTypes),
				pick(rng, repeatTypes),
				channel,
				pick(rng, grades),
				pick(rng, terms),
				submits,
				approved,
				issuance,
				round2(submits*(0.95+0.1*rng.Float64())),
				round2(approved*(0.95+0.1*rng.Float64())),
				round2(issuance*(0.95+0.1*rng.Float64())),
				round2(submits*(0.8+0.3*rng.Float64())),
				round2(approved*(0.8+0.3*rng.Float64())),
				round2(issuance*(0.8+0.3*rng.Float64())),
			); err != nil {
				return 0, fmt.Errorf("insert forecast row %d: %w", rows+1, err)
			}
			rows++
		}
	}
	return rows, nil
}

const dateLayout = "2006-01-02"

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ficoBand buckets a score into the fixed credit-band vocabulary.
func ficoBand(fico int) string {
	switch {
	case fico < 640:
		return "<640"
	case fico < 700:
		return "640-699"
	case fico < 760:
		return "700-759"
	default:
		return "760+"
	}
}
