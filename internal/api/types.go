package api

import (
	"time"

	"github.com/google/uuid"
)

type BookRequest struct {
	Start        string  `json:"start"`
	End          string  `json:"end"`
	CustomerName *string `json:"customer_name,omitempty"`
	ServiceName  *string `json:"service_name,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	CustomerName *string   `json:"customer_name,omitempty"`
	ServiceName  *string   `json:"service_name,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SlotResponse struct {
	StartTime         time.Time `json:"start_time"`
	DurationMinutes   int       `json:"duration_minutes"`
	AvailableStations int       `json:"available_stations"`
	MaxStations       int       `json:"max_stations"`
}

type AvailabilityResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type CapacityCheckResponse struct {
	Admissible bool   `json:"admissible"`
	Reason     string `json:"reason,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

type SlotOccupancyResponse struct {
	StartTime time.Time `json:"start_time"`
	Occupied  int       `json:"occupied"`
}

type DashboardResponse struct {
	Date              string                  `json:"date"`
	MaxConcurrent     int                     `json:"max_concurrent"`
	MaxDaily          int                     `json:"max_daily"`
	CurrentDailyCount int                     `json:"current_daily_count"`
	PerSlotOccupancy  []SlotOccupancyResponse `json:"per_slot_occupancy"`
}

type SettingPayload struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

type SettingResponse struct {
	Value   string `json:"value"`
	Type    string `json:"type"`
	Coerced any    `json:"coerced"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
