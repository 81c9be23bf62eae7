package models

// CalculationResult is derived from a completed session and never stored.
type CalculationResult struct {
	Perimeter     float64 `json:"perimeter"`
	WallArea      float64 `json:"wall_area"`
	WindowArea    float64 `json:"window_area"`
	DoorArea      float64 `json:"door_area"`
	NetArea       float64 `json:"net_area"`
	StripHeight   float64 `json:"strip_height"`
	StripsPerRoll int     `json:"strips_per_roll"`
	StripsNeeded  int     `json:"strips_needed"`
	RollsNeeded   int     `json:"rolls_needed"`
}
