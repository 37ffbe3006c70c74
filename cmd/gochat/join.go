package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/npezzotti/gochat-client/internal/api"
	"github.com/npezzotti/gochat-client/internal/config"
	"github.com/npezzotti/gochat-client/internal/device"
	"github.com/npezzotti/gochat-client/internal/session"
	"github.com/npezzotti/gochat-client/internal/transport"
	"github.com/npezzotti/gochat-client/internal/tui"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/spf13/cobra"
)

var (
	flagLat        float64
	flagLng        float64
	flagImageLimit int64
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().Float64Var(&flagLat, "lat", 0, "latitude shared by /loc")
	joinCmd.Flags().Float64Var(&flagLng, "lng", 0, "longitude shared by /loc")
	joinCmd.Flags().Int64Var(&flagImageLimit, "image-limit", device.DefaultMaxImageSize, "largest image /photo will send, in bytes")
}

func newSuppressor(cfg *config.Config, user types.User) session.Suppressor {
	if cfg.DedupStrategy == config.DedupContent {
		return session.NewContentSuppressor(user, cfg.DedupWindow)
	}
	return session.NewCorrelationSuppressor(user, cfg.DedupWindow)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the terminal belongs to the room view
	a, err := newApp(ctx, io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.cache.GetUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return errNoProfile
	}

	room, found, err := a.cache.GetRoom(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		room = api.RoomFromKey(args[0])
		room.LastActivity = time.Now().UnixMilli()
		if err := a.cache.SaveRoom(ctx, room); err != nil {
			return err
		}
	}

	conn := transport.NewConn(a.cfg.BrokerURL, a.log,
		transport.WithStats(a.stats),
		transport.WithHeader(http.Header{"User-Agent": {api.UserAgent}}),
	)
	s := session.NewSession(room, *user, conn, a.log, session.Options{
		Suppressor: newSuppressor(a.cfg, *user),
		Cache:      a.cache,
		Stats:      a.stats,
	})
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("join %s: %w", room.Name, err)
	}

	composer := session.NewComposer(s, a.cache, a.log)
	locator := device.NewStaticLocator(flagLat, flagLng,
		cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng"))
	m := tui.New(s, composer, a.log, tui.Options{
		Locator:    locator,
		ImageLimit: flagImageLimit,
	})

	_, runErr := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	).Run()

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Leave(leaveCtx); err != nil {
		a.log.Warn().Err(err).Msg("leave room")
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
