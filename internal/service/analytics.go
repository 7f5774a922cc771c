package service

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
)

// ageBuckets are the fixed age bands used for the age distribution
var ageBuckets = []string{"0-17", "18-34", "35-49", "50-64", "65+"}

// defaultGenders backs the gender distribution when the schema carries no
// explicit unique values for the configured gender field
var defaultGenders = []string{"Male", "Female", "Other"}

// AnalyticsEngine computes cohort aggregates from a filter set. Every
// aggregate is a pure function of the enabled filters and the schema, so two
// sessions holding equivalent filter sets always see identical numbers.
type AnalyticsEngine struct {
	schema *schema.Index
	config domain.AnalyticsConfig
	logger *logrus.Logger
}

// NewAnalyticsEngine creates an analytics engine over a loaded schema index
func NewAnalyticsEngine(idx *schema.Index, config domain.AnalyticsConfig, logger *logrus.Logger) *AnalyticsEngine {
	if config.BasePopulation <= 0 {
		config.BasePopulation = 10000
	}
	return &AnalyticsEngine{
		schema: idx,
		config: config,
		logger: logger,
	}
}

// CohortSnapshot is the materialized view all aggregates are derived from.
// Deriving patient count, demographics and diagnosis breakdown from the same
// snapshot keeps the three structurally consistent with each other.
type CohortSnapshot struct {
	CohortID       string
	Fingerprint    string
	BasePopulation int
	PatientCount   int
	ComputedAt     time.Time
}

// Snapshot materializes the cohort for the enabled subset of filters.
// Disabled filters contribute nothing, and filter order does not matter: the
// per-filter selectivity factors combine by multiplication.
func (e *AnalyticsEngine) Snapshot(cohortID string, filters []*domain.Filter) *CohortSnapshot {
	retention := 1.0
	enabled := 0
	for _, f := range filters {
		if f == nil || !f.Enabled {
			continue
		}
		retention *= e.retentionFactor(f)
		enabled++
	}

	count := int(math.Round(float64(e.config.BasePopulation) * retention))
	if count < 0 {
		count = 0
	}

	snap := &CohortSnapshot{
		CohortID:       cohortID,
		Fingerprint:    Fingerprint(filters),
		BasePopulation: e.config.BasePopulation,
		PatientCount:   count,
		ComputedAt:     time.Now().UTC(),
	}

	e.logger.WithFields(logrus.Fields{
		"cohort_id":       cohortID,
		"enabled_filters": enabled,
		"patient_count":   snap.PatientCount,
	}).Debug("Materialized cohort snapshot")

	return snap
}

// FilterAffectedCount estimates how many patients a single filter would
// select against the base population on its own.
func (e *AnalyticsEngine) FilterAffectedCount(f *domain.Filter) int {
	count := int(math.Round(float64(e.config.BasePopulation) * e.retentionFactor(f)))
	if count < 0 {
		count = 0
	}
	return count
}

// Demographics computes the gender and age distributions for a snapshot.
// Each distribution partitions exactly PatientCount patients.
func (e *AnalyticsEngine) Demographics(snap *CohortSnapshot) domain.Demographics {
	genders := e.genderCategories()
	return domain.Demographics{
		GenderDistribution: e.apportion(snap, "gender", genders),
		AgeDistribution:    e.apportion(snap, "age", ageBuckets),
		TotalPatients:      snap.PatientCount,
	}
}

// DiagnosisBreakdown computes the distribution of patients by primary
// diagnosis. Like the demographic distributions it partitions exactly
// PatientCount patients.
func (e *AnalyticsEngine) DiagnosisBreakdown(snap *CohortSnapshot) map[string]int {
	var diagnoses []string
	if e.schema != nil {
		diagnoses = e.schema.FieldUniqueValues(e.config.DiagnosisTable, e.config.DiagnosisField)
	}
	if len(diagnoses) == 0 {
		diagnoses = []string{"Unspecified"}
	}
	return e.apportion(snap, "diagnosis", diagnoses)
}

// Analytics bundles all three aggregates computed from one snapshot
func (e *AnalyticsEngine) Analytics(snap *CohortSnapshot) *domain.CohortAnalytics {
	return &domain.CohortAnalytics{
		PatientCount:       snap.PatientCount,
		Demographics:       e.Demographics(snap),
		DiagnosisBreakdown: e.DiagnosisBreakdown(snap),
	}
}

// Fingerprint returns a stable identity for the enabled subset of a filter
// list. It ignores order and disabled filters but distinguishes inclusion
// from exclusion, so it doubles as the analytics cache key.
func Fingerprint(filters []*domain.Filter) string {
	contents := make([]string, 0, len(filters))
	for _, f := range filters {
		if f == nil || !f.Enabled {
			continue
		}
		contents = append(contents, filterContent(f))
	}
	sort.Strings(contents)

	sum := sha256.Sum256([]byte(strings.Join(contents, "\n")))
	return fmt.Sprintf("%x", sum[:16])
}

// retentionFactor derives a selectivity factor in (0, 1] from the filter's
// content. Content-addressed factors make recomputation after a disable and
// re-enable land on exactly the same count.
func (e *AnalyticsEngine) retentionFactor(f *domain.Filter) float64 {
	frac := hashFraction(filterContent(f))
	if f.Kind == domain.FilterExclude {
		// Exclusions tend to carve off less of the population than
		// inclusions narrow it.
		return 0.55 + 0.43*frac
	}
	return 0.35 + 0.60*frac
}

// filterContent canonicalizes the analytics-relevant content of a filter:
// kind, revised criterion, and the entity to field bindings in sorted order.
// Filter ID and display text are deliberately excluded.
func filterContent(f *domain.Filter) string {
	bindings := make([]string, 0, len(f.DBMappings))
	for entity, mapping := range f.DBMappings {
		bindings = append(bindings, entity+"="+mapping.TableDotField)
	}
	sort.Strings(bindings)

	return string(f.Kind) + "|" + f.RevisedCriterion + "|" + strings.Join(bindings, ",")
}

// apportion splits a snapshot's patient count across categories using the
// largest remainder method, so the parts always sum exactly to PatientCount.
// Category weights are derived from the snapshot fingerprint, which keeps
// every distribution deterministic for a given filter set.
func (e *AnalyticsEngine) apportion(snap *CohortSnapshot, dimension string, categories []string) map[string]int {
	result := make(map[string]int, len(categories))
	if len(categories) == 0 || snap.PatientCount <= 0 {
		for _, c := range categories {
			result[c] = 0
		}
		return result
	}

	weights := make([]float64, len(categories))
	totalWeight := 0.0
	for i, c := range categories {
		// A floor of 1 keeps every category represented in the weight
		// mass even when its hash fraction is tiny.
		weights[i] = 1.0 + 4.0*hashFraction(snap.Fingerprint+"|"+dimension+"|"+c)
		totalWeight += weights[i]
	}

	type remainder struct {
		index int
		frac  float64
	}

	assigned := 0
	remainders := make([]remainder, len(categories))
	for i, c := range categories {
		quota := float64(snap.PatientCount) * weights[i] / totalWeight
		whole := int(math.Floor(quota))
		result[c] = whole
		assigned += whole
		remainders[i] = remainder{index: i, frac: quota - float64(whole)}
	}

	// Hand the leftover patients to the largest fractional remainders,
	// breaking ties by category name for determinism.
	sort.Slice(remainders, func(a, b int) bool {
		if remainders[a].frac != remainders[b].frac {
			return remainders[a].frac > remainders[b].frac
		}
		return categories[remainders[a].index] < categories[remainders[b].index]
	})
	for i := 0; i < snap.PatientCount-assigned; i++ {
		result[categories[remainders[i%len(remainders)].index]]++
	}

	return result
}

// genderCategories returns the gender values declared in the schema, falling
// back to a fixed set when the field carries none.
func (e *AnalyticsEngine) genderCategories() []string {
	if e.schema != nil {
		if values := e.schema.FieldUniqueValues(e.config.PatientTable, e.config.GenderField); len(values) > 0 {
			return values
		}
	}
	return defaultGenders
}

// hashFraction maps a string deterministically onto [0, 1)
func hashFraction(s string) float64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return float64(h.Sum64()) / float64(math.MaxUint64)
}
