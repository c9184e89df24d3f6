package recurrence

// Config holds the detection thresholds. The numeric defaults are fixed
// constants of the heuristics, exposed here so deployments can tune them.
type Config struct {
	// LookbackMonths bounds the general pattern detection window.
	LookbackMonths int
	// IncomeLookbackMonths bounds the salary detection window, and doubles
	// as N for the top-N largest-credits fallback.
	IncomeLookbackMonths int

	// MinOccurrences is the floor below which no series is detected.
	MinOccurrences int
	// MonthlyGapMin/Max is the mean day-gap band treated as monthly.
	MonthlyGapMin float64
	MonthlyGapMax float64

	// MinSalaryAmount filters credits considered salary candidates.
	MinSalaryAmount float64
	// OutlierMultiplier scales the median into the bonus-month threshold.
	OutlierMultiplier float64
	// DefaultSalaryDay is reported when no salary instance exists.
	DefaultSalaryDay int
	// SalaryKeywords are matched case-insensitively against merchant,
	// description and subcategory.
	SalaryKeywords []string
	// IncomeCategory marks a credit as salary-signal by category.
	IncomeCategory string

	// PredictionHorizonDays is how far ahead bills are predicted.
	PredictionHorizonDays int
	// PredictionMinOccurrences is the history floor for a prediction.
	PredictionMinOccurrences int
	// PredictionDayVariance is the maximum mean absolute deviation of the
	// day-of-month for a merchant to be considered regular.
	PredictionDayVariance float64
	// PredictionTightDayVariance and PredictionAmountVariance gate the
	// "high" confidence tier.
	PredictionTightDayVariance float64
	PredictionAmountVariance   float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LookbackMonths:       12,
		IncomeLookbackMonths: 6,

		MinOccurrences: 3,
		MonthlyGapMin:  25,
		MonthlyGapMax:  35,

		MinSalaryAmount:   1000,
		OutlierMultiplier: 1.3,
		DefaultSalaryDay:  25,
		SalaryKeywords:    []string{"salary", "salaire", "payroll", "wages", "paie"},
		IncomeCategory:    "Income",

		PredictionHorizonDays:      7,
		PredictionMinOccurrences:   2,
		PredictionDayVariance:      5,
		PredictionTightDayVariance: 2,
		PredictionAmountVariance:   0.10,
	}
}
