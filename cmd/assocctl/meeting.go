package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"association/internal/attendance"
)

func newMeetingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Manage meetings",
	}
	cmd.AddCommand(newMeetingCreateCommand())
	return cmd
}

func newMeetingCreateCommand() *cobra.Command {
	var m attendance.Meeting
	var date string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an upcoming meeting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			m.Date = d

			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			created, err := e.records.CreateMeeting(cmd.Context(), m)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(created)
		},
	}
	cmd.Flags().StringVar(&m.Topic, "topic", "", "Meeting topic (required)")
	cmd.Flags().StringVar(&date, "date", "", "Meeting date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&m.StartTime, "start", "", "Start time, e.g. 18:00 (required)")
	cmd.Flags().StringVar(&m.EndTime, "end", "", "End time")
	cmd.Flags().StringVar(&m.Location, "location", "", "Location")
	cmd.Flags().StringVar(&m.Description, "description", "", "Description")
	cmd.Flags().IntVar(&m.DurationMinutes, "qr-duration", attendance.DefaultDurationMinutes, "QR session length in minutes")
	cmd.Flags().StringVar(&m.CreatedBy, "created-by", "assocctl", "Creator uid")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
