package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
	goble "github.com/srg/swft/internal/device/go-ble"
	"github.com/srg/swft/internal/peripherals"
	"github.com/srg/swft/internal/ringchan"
	"github.com/srg/swft/pkg/config"
)

const (
	scanPollInterval     = 100 * time.Millisecond
	watchRefreshInterval = time.Second
	watchFeedSize        = 256
)

// centralFactory creates the host central (can be overridden in tests)
var centralFactory device.CentralFactory = goble.NewCentral

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Discovered peripherals are listed in the order they were first seen, with
their names, addresses, RSSI values and advertised services. With --watch the
table is redrawn as advertisements arrive until Ctrl+C or --duration elapses.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanServices        []string
	scanWatch           bool
	scanAllowDuplicates bool
)

func init() {
	addScanFlags(scanCmd)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	cmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	cmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
	cmd.Flags().BoolVar(&scanAllowDuplicates, "allow-duplicates", true, "Report every advertisement, not only the first per device")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// flags win over SWFT_* variables
	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.ScanTimeout = scanDuration
	} else if scanWatch {
		cfg.ScanTimeout = 0
	}
	if flags.Changed("format") {
		cfg.OutputFormat = scanFormat
	}
	if flags.Changed("allow-duplicates") {
		cfg.AllowDuplicates = scanAllowDuplicates
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	var serviceUUIDs []string
	if len(scanServices) > 0 {
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ScanTimeout)
		defer cancel()
	}

	session, err := newScanSession(logger, cfg)
	if err != nil {
		return err
	}
	defer session.close()

	if scanWatch {
		return session.watch(ctx, cmd.OutOrStdout(), serviceUUIDs)
	}
	return session.scanOnce(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), serviceUUIDs)
}

// scanSession owns the manager and its observers for one scan command.
// The manager holds observers weakly, so the session keeps them reachable.
type scanSession struct {
	cfg     *config.Config
	logger  *logrus.Logger
	manager *central.Manager
	list    *peripherals.List
	events  *logObserver
}

func newScanSession(logger *logrus.Logger, cfg *config.Config) (*scanSession, error) {
	s := &scanSession{
		cfg:    cfg,
		logger: logger,
		manager: central.New(centralFactory, logger, &central.Options{
			AllowDuplicates: cfg.AllowDuplicates,
		}),
		list:   peripherals.NewList(logger),
		events: &logObserver{logger: logger},
	}

	if err := s.manager.AddObserver(s.list); err != nil {
		return nil, err
	}
	if err := s.manager.AddObserver(s.events); err != nil {
		return nil, err
	}

	if err := s.manager.PowerOn(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scanSession) close() {
	if err := s.manager.PowerOff(); err != nil {
		s.logger.WithError(err).Warn("Failed to power off central")
	}
}

func (s *scanSession) scanOnce(ctx context.Context, out, status io.Writer, uuids []string) error {
	progress := NewScanProgress(status, s.cfg.ScanTimeout)
	if err := s.manager.AddObserver(progress); err != nil {
		return err
	}

	s.list.Reset()
	if err := s.manager.StartScanning(ctx, uuids); err != nil {
		return err
	}

	progress.Start()
	waitForScan(ctx, s.manager)
	progress.Stop()
	s.manager.StopScanning()

	if err := s.manager.Err(); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return renderPeripherals(out, s.list.Snapshot(), s.cfg.OutputFormat)
}

func (s *scanSession) watch(ctx context.Context, out io.Writer, uuids []string) error {
	feed := &feedObserver{feed: ringchan.New[device.Peripheral](watchFeedSize)}
	defer feed.feed.Close()
	if err := s.manager.AddObserver(feed); err != nil {
		return err
	}

	s.list.Reset()
	if err := s.manager.StartScanning(ctx, uuids); err != nil {
		return err
	}

	redraw := func() error {
		clearScreen(out)
		return renderPeripherals(out, s.list.Snapshot(), s.cfg.OutputFormat)
	}

	ticker := time.NewTicker(watchRefreshInterval)
	defer ticker.Stop()
	dirty := true

	for {
		select {
		case <-ctx.Done():
			s.manager.StopScanning()
			if err := s.manager.Err(); err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			return redraw()

		case <-feed.feed.C():
			dirty = true

		case <-ticker.C:
			if !s.manager.IsScanning() {
				if err := s.manager.Err(); err != nil {
					return fmt.Errorf("scan failed: %w", err)
				}
				return redraw()
			}
			if dirty {
				if err := redraw(); err != nil {
					return err
				}
				dirty = false
			}
		}
	}
}

// waitForScan blocks until the scan ends on its own or ctx is done
func waitForScan(ctx context.Context, m *central.Manager) {
	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()

	for m.IsScanning() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// logObserver writes manager events to the log
type logObserver struct {
	logger *logrus.Logger
}

func (o *logObserver) DidUpdateState(state central.State) {
	o.logger.WithField("state", state).Info("Central state changed")
}

func (o *logObserver) DidDiscoverPeripheral(p device.Peripheral) {
	o.logger.WithFields(logrus.Fields{
		"device":  p.DisplayName(),
		"address": p.Address,
		"rssi":    p.RSSI,
	}).Trace("Advertisement")
}

func (o *logObserver) DidConnectPeripheral(p device.Peripheral) {
	o.logger.WithField("address", p.Address).Info("Connected")
}

func (o *logObserver) DidDisconnectPeripheral(p device.Peripheral, err error) {
	entry := o.logger.WithField("address", p.Address)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("Disconnected")
}

// feedObserver forwards discoveries to a bounded feed so a slow terminal
// never stalls the broadcast
type feedObserver struct {
	central.NopDelegate
	feed *ringchan.RingChannel[device.Peripheral]
}

func (o *feedObserver) DidDiscoverPeripheral(p device.Peripheral) {
	o.feed.Send(p)
}

func renderPeripherals(w io.Writer, entries []peripherals.Entry, format string) error {
	switch format {
	case "json":
		return renderPeripheralsJSON(w, entries)
	default:
		return renderPeripheralsTable(w, entries)
	}
}

// truncate shortens s to at most limit runes, marking the cut with "..."
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

func renderPeripheralsTable(w io.Writer, entries []peripherals.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES\tSEEN")

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unknown)"
		}
		name = truncate(name, 20)
		if e.Connected {
			name += " *"
		}

		services := strings.Join(e.AdvertisedServices, ",")
		if services == "" {
			services = "-"
		}
		services = truncate(services, 30)

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			name, e.Address, rssiColor(e.RSSI).Sprintf("%d dBm", e.RSSI), services, e.Sightings)
	}

	return tw.Flush()
}

// rssiColor grades signal strength
func rssiColor(rssi int) *color.Color {
	switch {
	case rssi >= -60:
		return color.New(color.FgGreen)
	case rssi >= -80:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func renderPeripheralsJSON(w io.Writer, entries []peripherals.Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
