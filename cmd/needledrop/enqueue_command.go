package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		trackID    string
		friendID   int
		appleMusic string
		spotify    string
		youtube    string
		soundcloud string
		prefer     string
		priority   string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue audio acquisition for a track",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			payload := map[string]any{
				"track_id":  trackID,
				"friend_id": friendID,
			}
			if appleMusic != "" {
				payload["apple_music_url"] = appleMusic
			}
			if spotify != "" {
				payload["spotify_url"] = spotify
			}
			if youtube != "" {
				payload["youtube_url"] = youtube
			}
			if soundcloud != "" {
				payload["soundcloud_url"] = soundcloud
			}
			if prefer != "" {
				payload["preferred_downloader"] = prefer
			}
			if priority != "" {
				payload["priority"] = priority
			}

			result, err := client.enqueueDownload(payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s on %s\n", result.JobID, result.Queue)
			return nil
		},
	}

	cmd.Flags().StringVar(&trackID, "track", "", "Catalog track id (required)")
	cmd.Flags().IntVar(&friendID, "friend", 0, "Friend id owning the track")
	cmd.Flags().StringVar(&appleMusic, "apple-music", "", "Apple Music source URL")
	cmd.Flags().StringVar(&spotify, "spotify", "", "Spotify source URL")
	cmd.Flags().StringVar(&youtube, "youtube", "", "YouTube source URL")
	cmd.Flags().StringVar(&soundcloud, "soundcloud", "", "SoundCloud source URL")
	cmd.Flags().StringVar(&prefer, "prefer", "", "Preferred downloader (freyr, spotdl, yt-dlp, scdl)")
	cmd.Flags().StringVar(&priority, "priority", "", "Job priority (high, normal, low)")
	_ = cmd.MarkFlagRequired("track")

	return cmd
}
