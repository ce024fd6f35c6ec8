package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	CycleID     string `json:"cycle_id"`
	AsOf        string `json:"as_of"`
	SignalCount int    `json:"signal_count"`
	TargetCount int    `json:"target_count"`
	RiskMode    string `json:"risk_mode"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// TargetsReadyData contains data for TargetsReady events
type TargetsReadyData struct {
	CycleID       string  `json:"cycle_id"`
	Count         int     `json:"count"`
	GrossExposure float64 `json:"gross_exposure"`
}

// EventType returns the event type for TargetsReadyData
func (d *TargetsReadyData) EventType() EventType {
	return TargetsReady
}

// RiskModeChangedData contains data for RiskModeChanged events
type RiskModeChangedData struct {
	Mode     string `json:"mode"`
	Reason   string `json:"reason"`
	ResumeAt string `json:"resume_at,omitempty"`
}

// EventType returns the event type for RiskModeChangedData
func (d *RiskModeChangedData) EventType() EventType {
	return RiskModeChanged
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Module  string `json:"module"`
	Message string `json:"message"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
