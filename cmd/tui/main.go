package main

import (
	"flag"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rovshanmuradov/solana-rpcmux/internal/ui"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8091", "Admin server address of a running rpcmux")
	flag.Parse()

	baseURL := strings.TrimRight(*addr, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	program := tea.NewProgram(
		ui.WithRecovery(ui.NewDashboard(baseURL)),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := program.Run(); err != nil {
		log.Fatalf("Dashboard failed: %v", err)
	}
}
