package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/npezzotti/gochat-client/internal/api"
	"github.com/npezzotti/gochat-client/internal/device"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/spf13/cobra"
)

var errNoProfile = errors.New("no profile yet, run: gochat profile --name <display name>")

var (
	flagProfileName   string
	flagProfileAvatar string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
	Args:  cobra.NoArgs,
	RunE:  runProfile,
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms, falling back to the local cache when offline",
	Args:  cobra.NoArgs,
	RunE:  runRooms,
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var leaveCmd = &cobra.Command{
	Use:   "leave <room>",
	Short: "Remove a room from the local room list",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeave,
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List photos you have sent",
	Args:  cobra.NoArgs,
	RunE:  runGallery,
}

func init() {
	profileCmd.Flags().StringVar(&flagProfileName, "name", "", "display name")
	profileCmd.Flags().StringVar(&flagProfileAvatar, "avatar", "", "path to an avatar image")
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if flagProfileName == "" && flagProfileAvatar == "" {
		u, err := a.cache.GetUser(ctx)
		if err != nil {
			return err
		}
		if u == nil {
			return errNoProfile
		}
		printProfile(cmd, *u)
		return nil
	}

	name := flagProfileName
	if name == "" {
		u, err := a.cache.GetUser(ctx)
		if err != nil {
			return err
		}
		if u == nil {
			return errNoProfile
		}
		name = u.DisplayName
	}

	var avatar string
	if flagProfileAvatar != "" {
		avatar, err = device.ReadImage(flagProfileAvatar, 0)
		if err != nil {
			return fmt.Errorf("avatar: %w", err)
		}
	}

	u, err := a.cache.UpdateProfile(ctx, name, avatar)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "profile saved")
	printProfile(cmd, u)
	return nil
}

func printProfile(cmd *cobra.Command, u types.User) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:     %s\n", u.Id)
	fmt.Fprintf(out, "name:   %s\n", u.DisplayName)
	if u.AvatarUri != "" {
		fmt.Fprintf(out, "avatar: %d bytes\n", len(u.AvatarUri))
	}
}

func runRooms(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	offline := false
	rooms, err := a.api.ListRooms(ctx)
	if err == nil {
		rooms, err = a.cache.MergeRooms(ctx, rooms)
	} else {
		a.log.Warn().Err(err).Msg("failed to fetch rooms, showing cached rooms")
		offline = true
		rooms, err = a.cache.GetRooms(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if offline {
		fmt.Fprintln(out, "(offline, showing cached rooms)")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLAST ACTIVITY\tLAST MESSAGE")
	for _, r := range rooms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Id, r.Name, formatActivity(r.LastActivity), truncate(r.LastMessagePreview, 40))
	}
	return w.Flush()
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	room, err := a.api.CreateRoom(ctx, args[0])
	if err != nil {
		if errors.Is(err, api.ErrRoomCreate) {
			return api.ErrRoomCreate
		}
		return err
	}

	room.LastMessagePreview = "Created room"
	room.LastActivity = time.Now().UnixMilli()
	if err := a.cache.SaveRoom(ctx, room); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created room %q\n", room.Name)
	return nil
}

func runLeave(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cache.RemoveRoom(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "left room %q\n", args[0])
	return nil
}

func runGallery(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	photos, err := a.cache.GetPhotos(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(photos) == 0 {
		fmt.Fprintln(out, "no photos yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAKEN\tROOM\tSIZE")
	for _, p := range photos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.Id, formatActivity(p.TimestampMs), p.RoomId, len(p.Url))
	}
	return w.Flush()
}

func formatActivity(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
