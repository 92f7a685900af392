package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/pool"
)

// natalityTable is the public birth records table.
const natalityTable = "publicdata.samples.natality"

// natalityHashExpr hashes the year/month of the birth so that all rows
// from one month land in the same split. Splitting on an attribute
// coarser than the row keeps near-duplicate births (twins, same
// hospital, same day) out of the evaluation set.
const natalityHashExpr = "FARM_FINGERPRINT(CONCAT(CAST(year AS STRING), CAST(month AS STRING)))"

// Natality predicts birth weight from pregnancy attributes.
type Natality struct {
	split SplitSpec
}

// NewNatality creates the natality dataset with its 75/25 month-hash split.
func NewNatality() *Natality {
	return &Natality{
		split: SplitSpec{
			HashExpr:     "hashmonth",
			Buckets:      4,
			TrainBuckets: 3,
		},
	}
}

func init() {
	Register(NewNatality())
}

// Name returns the registry key
func (n *Natality) Name() string { return "natality" }

// Description returns a one-line summary
func (n *Natality) Description() string {
	return "US birth records: predict baby weight from pregnancy attributes"
}

// Label returns the target column
func (n *Natality) Label() string { return "weight_pounds" }

// Features returns the input columns
func (n *Natality) Features() []string {
	return []string{"is_male", "mother_age", "plurality", "gestation_weeks"}
}

// Columns returns label followed by features
func (n *Natality) Columns() []string {
	return append([]string{n.Label()}, n.Features()...)
}

// SplitSpec returns the train/eval split definition
func (n *Natality) SplitSpec() SplitSpec { return n.split }

// Schema describes the exported rows
func (n *Natality) Schema() *core.Schema {
	return &core.Schema{
		Name:        "natality",
		Description: n.Description(),
		Version:     1,
		CreatedAt:   time.Now(),
		Fields: []core.Field{
			{Name: "weight_pounds", Type: core.FieldTypeFloat, Description: "birth weight in pounds"},
			{Name: "is_male", Type: core.FieldTypeBool},
			{Name: "mother_age", Type: core.FieldTypeInt},
			{Name: "plurality", Type: core.FieldTypeInt, Description: "number of children in this birth"},
			{Name: "gestation_weeks", Type: core.FieldTypeInt},
		},
	}
}

// Query renders the source query for a split. The month hash is
// computed in an inner query so both the split predicate and the
// exported hashmonth column share one definition.
func (n *Natality) Query(split Split, opts QueryOptions) string {
	var b strings.Builder

	b.WriteString("SELECT weight_pounds, is_male, mother_age, plurality, gestation_weeks, hashmonth\n")
	b.WriteString("FROM (\n")
	b.WriteString("  SELECT weight_pounds, is_male, mother_age, plurality, gestation_weeks,\n")
	fmt.Fprintf(&b, "    %s AS hashmonth\n", natalityHashExpr)
	fmt.Fprintf(&b, "  FROM `%s`\n", natalityTable)
	b.WriteString("  WHERE year > 2000\n")
	b.WriteString("    AND weight_pounds > 0\n")
	b.WriteString("    AND mother_age > 0\n")
	b.WriteString("    AND plurality > 0\n")
	b.WriteString("    AND gestation_weeks > 0\n")
	b.WriteString(")")

	var predicates []string
	if p := n.split.Predicate(split); p != "" {
		predicates = append(predicates, p)
	}
	if opts.SampleEveryN > 1 {
		predicates = append(predicates,
			fmt.Sprintf("MOD(ABS(hashmonth), %d) = 0", opts.SampleEveryN))
	}
	if len(predicates) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(predicates, "\n  AND "))
	}

	if opts.Limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %d", opts.Limit)
	}

	return b.String()
}

// ToCSV projects a record onto the natality columns.
func (n *Natality) ToCSV(record *pool.Record) ([]string, error) {
	return ToCSVRow(record, n.Columns())
}
