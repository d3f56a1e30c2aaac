package backup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/taurus-fleet/taurus/internal/fleetconfig"
)

const (
	secondsPerHour  = 3600
	secondsPerDay   = 24 * secondsPerHour
	secondsPerWeek  = 7 * secondsPerDay
	secondsPerMonth = 30 * secondsPerWeek // monthly tier boundary and cadence: 30 weeks
	halfHourSeconds = 1800
)

// Half-hour-bucket tier boundaries for the slotted retention tiers.
const (
	hourlyBucketCeiling  = secondsPerDay / halfHourSeconds   // 48
	dailyBucketCeiling   = secondsPerWeek / halfHourSeconds  // 336
	weeklyBucketCeiling  = secondsPerMonth / halfHourSeconds // 10080
)

// PerformScheduledBackups is the per-session, per-tick entry point
// driven by the orchestrator's clock. dest is the session's effective
// backup directory (Game.BackupDir).
func (e *Engine) PerformScheduledBackups(checker HealthChecker, name string, game *fleetconfig.Game, dest string, clock uint64) string {
	if game == nil {
		return ""
	}

	if game.Slotted() {
		return e.tickSlotted(checker, name, game, dest, clock)
	}
	return e.tickInterval(checker, name, game, dest, clock)
}

func (e *Engine) tickInterval(checker HealthChecker, name string, game *fleetconfig.Game, dest string, clock uint64) string {
	if game.BackupInterval == nil || *game.BackupInterval == 0 {
		return ""
	}
	if clock%uint64(*game.BackupInterval) != 0 {
		return ""
	}

	result := e.Backup(checker, name, game, dest)

	if game.BackupKeep != nil {
		_ = DeleteBackupsOlderThan(dest, name, time.Duration(*game.BackupKeep)*time.Second)
	}
	return result
}

// tickSlotted runs at most one backup per tick, on the first tier
// (monthly → weekly → daily → hourly) whose cadence matches the clock,
// then applies slotted retention.
func (e *Engine) tickSlotted(checker HealthChecker, name string, game *fleetconfig.Game, dest string, clock uint64) string {
	tiers := []int64{secondsPerMonth, secondsPerWeek, secondsPerDay, secondsPerHour}
	var result string
	for _, tier := range tiers {
		if clock%uint64(tier) == 0 {
			result = e.Backup(checker, name, game, dest)
			break
		}
	}

	applySlottedRetention(dest, name, game)
	return result
}

// backupSlot is a transient age-bucketed retention record.
type backupSlot struct {
	filename   string
	modTime    time.Time
	halfHourID int64
}

// applySlottedRetention walks existing "<name>_*.tar.gz" archives,
// places each into the finest disjoint tier window it falls within,
// keeps the youngest up to that tier's configured slot count, and
// deletes the rest as overflow.
func applySlottedRetention(dir, name string, game *fleetconfig.Game) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	now := time.Now()
	var slots []backupSlot
	prefix := name + "_"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ageSeconds := int64(now.Sub(info.ModTime()).Seconds())
		slots = append(slots, backupSlot{
			filename:   entry.Name(),
			modTime:    info.ModTime(),
			halfHourID: ageSeconds / halfHourSeconds,
		})
	}

	var hourly, daily, weekly, monthly []backupSlot
	for _, s := range slots {
		switch {
		case s.halfHourID < hourlyBucketCeiling:
			hourly = append(hourly, s)
		case s.halfHourID < dailyBucketCeiling:
			daily = append(daily, s)
		case s.halfHourID < weeklyBucketCeiling:
			weekly = append(weekly, s)
		default:
			monthly = append(monthly, s)
		}
	}

	pruneTier(dir, hourly, capOf(game.Hourly))
	pruneTier(dir, daily, capOf(game.Daily))
	pruneTier(dir, weekly, capOf(game.Weekly))
	pruneTier(dir, monthly, capOf(game.Monthly))
}

func capOf(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// pruneTier keeps the `cap` youngest slots and deletes the rest.
func pruneTier(dir string, slots []backupSlot, cap int) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].modTime.After(slots[j].modTime) // youngest first
	})
	for i, s := range slots {
		if i < cap {
			continue
		}
		_ = os.Remove(filepath.Join(dir, s.filename))
	}
}
