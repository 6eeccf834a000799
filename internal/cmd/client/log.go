package client

import (
	"encoding/base64"

	"github.com/spf13/cobra"
)

// NewLogCommand constructs the `log` command group.
func NewLogCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Logical log operations"}
	logCmd.AddCommand(
		newLogCreateCommand(open, defaultContainer),
		newLogAppendCommand(open, defaultContainer),
		newLogReadCommand(open, defaultContainer),
		newLogFlushCommand(open, defaultContainer),
		newLogTruncateHeadCommand(open, defaultContainer),
		newLogTruncateTailCommand(open, defaultContainer),
		newLogInfoCommand(open, defaultContainer),
		newLogDeleteCommand(open, defaultContainer),
	)
	return logCmd
}

func newLogCreateCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a logical log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("container")
			alias, _ := cmd.Flags().GetString("log")
			t, err := open()
			if err != nil {
				return err
			}
			id, err := t.CreateLog(cmd.Context(), path, alias)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"id": id.String(), "alias": alias})
		},
	}
	createCmd.Flags().StringP("container", "c", defaultContainer, "Container path")
	createCmd.Flags().StringP("log", "l", "", "Alias to bind to the new log")
	return createCmd
}

func newLogAppendCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append bytes to a logical log and flush",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			data, err := payload(cmd)
			if err != nil {
				return err
			}
			barrier, _ := cmd.Flags().GetBool("barrier")
			t, err := open()
			if err != nil {
				return err
			}
			info, err := t.Append(cmd.Context(), ref, data, barrier)
			if err != nil {
				return err
			}
			return writeJSON(cmd, toLogInfoOut(info))
		},
	}
	addLogFlags(appendCmd, defaultContainer)
	appendCmd.Flags().String("data", "", "Payload")
	appendCmd.Flags().String("file", "", "Read payload from file (- for stdin)")
	appendCmd.Flags().Bool("b64", false, "Payload is base64")
	appendCmd.Flags().Bool("barrier", true, "Mark the final record as a barrier")
	return appendCmd
}

func newLogReadCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read bytes from a logical log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			off, _ := cmd.Flags().GetInt64("offset")
			n, _ := cmd.Flags().GetInt64("length")
			b64, _ := cmd.Flags().GetBool("b64")
			t, err := open()
			if err != nil {
				return err
			}
			data, err := t.Read(cmd.Context(), ref, off, n)
			if err != nil {
				return err
			}
			if b64 {
				_, err = cmd.OutOrStdout().Write([]byte(base64.StdEncoding.EncodeToString(data) + "\n"))
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	addLogFlags(readCmd, defaultContainer)
	readCmd.Flags().Int64("offset", 0, "Stream offset to read from")
	readCmd.Flags().Int64("length", 0, "Bytes to read (0 = to the end)")
	readCmd.Flags().Bool("b64", false, "Print base64 instead of raw bytes")
	return readCmd
}

func newLogFlushCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Flush buffered bytes with a barrier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			t, err := open()
			if err != nil {
				return err
			}
			info, err := t.Flush(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return writeJSON(cmd, toLogInfoOut(info))
		},
	}
	addLogFlags(flushCmd, defaultContainer)
	return flushCmd
}

func newLogTruncateHeadCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	truncCmd := &cobra.Command{
		Use:   "truncate-head",
		Short: "Discard bytes before an offset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			off, _ := cmd.Flags().GetInt64("offset")
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.TruncateHead(cmd.Context(), ref, off); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"status": "OK", "head": off})
		},
	}
	addLogFlags(truncCmd, defaultContainer)
	truncCmd.Flags().Int64("offset", 0, "New head truncation point")
	return truncCmd
}

func newLogTruncateTailCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	truncCmd := &cobra.Command{
		Use:   "truncate-tail",
		Short: "Discard bytes at and after an offset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			off, _ := cmd.Flags().GetInt64("offset")
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.TruncateTail(cmd.Context(), ref, off); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"status": "OK", "length": off})
		},
	}
	addLogFlags(truncCmd, defaultContainer)
	truncCmd.Flags().Int64("offset", 0, "New stream length")
	return truncCmd
}

func newLogInfoCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show length, head and driver of a logical log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			t, err := open()
			if err != nil {
				return err
			}
			info, err := t.Info(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return writeJSON(cmd, toLogInfoOut(info))
		},
	}
	addLogFlags(infoCmd, defaultContainer)
	return infoCmd
}

func newLogDeleteCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a logical log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := logRef(cmd)
			if err != nil {
				return err
			}
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.DeleteLog(cmd.Context(), ref); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"status": "deleted"})
		},
	}
	addLogFlags(deleteCmd, defaultContainer)
	return deleteCmd
}
