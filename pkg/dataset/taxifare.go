package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/pool"
)

// taxifareTable is the NYC yellow cab trips table.
const taxifareTable = "nyc-tlc.yellow.trips"

// taxifareHashExpr hashes the pickup timestamp, spreading rows evenly
// across buckets while keeping the assignment reproducible.
const taxifareHashExpr = "FARM_FINGERPRINT(CAST(pickup_datetime AS STRING))"

// Taxifare predicts the total cab fare from pickup/dropoff coordinates
// and passenger count. The label folds tolls into the fare since riders
// pay both.
type Taxifare struct {
	split SplitSpec
}

// NewTaxifare creates the taxifare dataset with its 75/25 trip-hash split.
func NewTaxifare() *Taxifare {
	return &Taxifare{
		split: SplitSpec{
			HashExpr:     "hashvalue",
			Buckets:      4,
			TrainBuckets: 3,
		},
	}
}

func init() {
	Register(NewTaxifare())
}

// Name returns the registry key
func (t *Taxifare) Name() string { return "taxifare" }

// Description returns a one-line summary
func (t *Taxifare) Description() string {
	return "NYC yellow cab trips: predict total fare from trip coordinates"
}

// Label returns the target column
func (t *Taxifare) Label() string { return "fare_amount" }

// Features returns the input columns
func (t *Taxifare) Features() []string {
	return []string{"pickuplon", "pickuplat", "dropofflon", "dropofflat", "passengers"}
}

// Columns returns label followed by features
func (t *Taxifare) Columns() []string {
	return append([]string{t.Label()}, t.Features()...)
}

// SplitSpec returns the train/eval split definition
func (t *Taxifare) SplitSpec() SplitSpec { return t.split }

// Schema describes the exported rows
func (t *Taxifare) Schema() *core.Schema {
	return &core.Schema{
		Name:        "taxifare",
		Description: t.Description(),
		Version:     1,
		CreatedAt:   time.Now(),
		Fields: []core.Field{
			{Name: "fare_amount", Type: core.FieldTypeFloat, Description: "fare plus tolls in USD"},
			{Name: "pickuplon", Type: core.FieldTypeFloat},
			{Name: "pickuplat", Type: core.FieldTypeFloat},
			{Name: "dropofflon", Type: core.FieldTypeFloat},
			{Name: "dropofflat", Type: core.FieldTypeFloat},
			{Name: "passengers", Type: core.FieldTypeFloat},
		},
	}
}

// Query renders the source query for a split. Quality filters remove
// rows with impossible coordinates, negative fares, or empty cabs;
// they belong to the dataset definition so that training and export
// always see the same population.
func (t *Taxifare) Query(split Split, opts QueryOptions) string {
	var b strings.Builder

	b.WriteString("SELECT fare_amount, pickuplon, pickuplat, dropofflon, dropofflat, passengers, hashvalue\n")
	b.WriteString("FROM (\n")
	b.WriteString("  SELECT\n")
	b.WriteString("    (tolls_amount + fare_amount) AS fare_amount,\n")
	b.WriteString("    pickup_longitude AS pickuplon,\n")
	b.WriteString("    pickup_latitude AS pickuplat,\n")
	b.WriteString("    dropoff_longitude AS dropofflon,\n")
	b.WriteString("    dropoff_latitude AS dropofflat,\n")
	b.WriteString("    passenger_count * 1.0 AS passengers,\n")
	fmt.Fprintf(&b, "    %s AS hashvalue\n", taxifareHashExpr)
	fmt.Fprintf(&b, "  FROM `%s`\n", taxifareTable)
	b.WriteString("  WHERE trip_distance > 0\n")
	b.WriteString("    AND fare_amount >= 2.5\n")
	b.WriteString("    AND pickup_longitude > -78 AND pickup_longitude < -70\n")
	b.WriteString("    AND dropoff_longitude > -78 AND dropoff_longitude < -70\n")
	b.WriteString("    AND pickup_latitude > 37 AND pickup_latitude < 45\n")
	b.WriteString("    AND dropoff_latitude > 37 AND dropoff_latitude < 45\n")
	b.WriteString("    AND passenger_count > 0\n")
	b.WriteString(")")

	var predicates []string
	if p := t.split.Predicate(split); p != "" {
		predicates = append(predicates, p)
	}
	if opts.SampleEveryN > 1 {
		predicates = append(predicates,
			fmt.Sprintf("MOD(ABS(hashvalue), %d) = 0", opts.SampleEveryN))
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

// ToCSV projects a record onto the taxifare columns.
func (t *Taxifare) ToCSV(record *pool.Record) ([]string, error) {
	return ToCSVRow(record, t.Columns())
}
