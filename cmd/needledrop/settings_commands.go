package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"needledrop/internal/settings"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-friend acquisition settings",
	}
	cmd.AddCommand(newSettingsShowCommand(ctx))
	cmd.AddCommand(newSettingsSetCommand(ctx))
	return cmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <friend-id>",
		Short: "Show the effective settings for a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			friendID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid friend id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			got, err := client.getSettings(friendID)
			if err != nil {
				return err
			}
			printSettings(cmd, got)
			return nil
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		quality      string
		format       string
		saveCover    string
		coverFormat  string
		saveLyrics   string
		lyricsFormat string
		overwrite    string
		skipVideos   string
		maxRetries   int
	)

	cmd := &cobra.Command{
		Use:   "set <friend-id>",
		Short: "Update settings for a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			friendID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid friend id %q", args[0])
			}

			var patch settings.Patch
			flags := cmd.Flags()
			if flags.Changed("quality") {
				patch.AudioQuality = &quality
			}
			if flags.Changed("format") {
				patch.AudioFormat = &format
			}
			if flags.Changed("cover-format") {
				patch.CoverFormat = &coverFormat
			}
			if flags.Changed("lyrics-format") {
				patch.LyricsFormat = &lyricsFormat
			}
			if flags.Changed("retries") {
				patch.MaxRetries = &maxRetries
			}
			if patch.SaveCover, err = parseBoolFlag(flags.Changed("save-cover"), "save-cover", saveCover); err != nil {
				return err
			}
			if patch.SaveLyrics, err = parseBoolFlag(flags.Changed("save-lyrics"), "save-lyrics", saveLyrics); err != nil {
				return err
			}
			if patch.OverwriteExisting, err = parseBoolFlag(flags.Changed("overwrite"), "overwrite", overwrite); err != nil {
				return err
			}
			if patch.SkipMusicVideos, err = parseBoolFlag(flags.Changed("skip-music-videos"), "skip-music-videos", skipVideos); err != nil {
				return err
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			got, err := client.updateSettings(friendID, patch)
			if err != nil {
				return err
			}
			printSettings(cmd, got)
			return nil
		},
	}

	cmd.Flags().StringVar(&quality, "quality", "", "Audio quality (best, high, standard, lossless)")
	cmd.Flags().StringVar(&format, "format", "", "Audio format (m4a, mp3, aac, flac)")
	cmd.Flags().StringVar(&saveCover, "save-cover", "", "Save cover art (true or false)")
	cmd.Flags().StringVar(&coverFormat, "cover-format", "", "Cover art format")
	cmd.Flags().StringVar(&saveLyrics, "save-lyrics", "", "Save lyrics (true or false)")
	cmd.Flags().StringVar(&lyricsFormat, "lyrics-format", "", "Lyrics format")
	cmd.Flags().StringVar(&overwrite, "overwrite", "", "Overwrite existing files (true or false)")
	cmd.Flags().StringVar(&skipVideos, "skip-music-videos", "", "Skip music video results (true or false)")
	cmd.Flags().IntVar(&maxRetries, "retries", 0, "Max download retries")

	return cmd
}

func parseBoolFlag(changed bool, name, value string) (*bool, error) {
	if !changed {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q for --%s", value, name)
	}
	return &parsed, nil
}

func printSettings(cmd *cobra.Command, got settings.Settings) {
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Setting", "Value"},
		[][]string{
			{"friend_id", strconv.Itoa(got.FriendID)},
			{"audio_quality", got.AudioQuality},
			{"audio_format", got.AudioFormat},
			{"save_cover", strconv.FormatBool(got.SaveCover)},
			{"cover_format", got.CoverFormat},
			{"save_lyrics", strconv.FormatBool(got.SaveLyrics)},
			{"lyrics_format", got.LyricsFormat},
			{"overwrite_existing", strconv.FormatBool(got.OverwriteExisting)},
			{"skip_music_videos", strconv.FormatBool(got.SkipMusicVideos)},
			{"max_retries", strconv.Itoa(got.MaxRetries)},
		},
		[]columnAlignment{alignLeft, alignLeft},
	))
}
