package main

import "github.com/charmbracelet/lipgloss"

// ansi 256 palette
var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	cell  = lipgloss.NewStyle().Padding(0, 1)
)
