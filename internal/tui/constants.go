package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval       = 250 * time.Millisecond
	NotificationTTL    = 4 * time.Second
	GraphHistoryPoints = 120

	// Input Dimensions
	InputWidth = 40

	// Layout
	ListWidthRatio  = 0.6 // Item list takes 60% width
	HeaderHeight    = 4
	MinListHeight   = 8
	MinGraphHeight  = 8
	MinDetailHeight = 8
	TitleColumns    = 32
)
