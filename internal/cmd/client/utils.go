package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	transports "github.com/microsoft/service-fabric-sub058/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// TransportFunc opens the transport a command runs against.
type TransportFunc func() (transports.LogTransport, error)

// writeJSON prints v indented on the command's output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addLogFlags registers the flags that select a logical log.
func addLogFlags(cmd *cobra.Command, defaultContainer string) {
	cmd.Flags().StringP("container", "c", defaultContainer, "Container path")
	cmd.Flags().StringP("log", "l", "", "Logical log alias")
	cmd.Flags().String("id", "", "Logical log id (when --log is not set)")
}

// logRef reads the flags registered by addLogFlags.
func logRef(cmd *cobra.Command) (transports.LogRef, error) {
	path, _ := cmd.Flags().GetString("container")
	alias, _ := cmd.Flags().GetString("log")
	idStr, _ := cmd.Flags().GetString("id")
	ref := transports.LogRef{Container: path, Alias: alias}
	if alias != "" {
		return ref, nil
	}
	if idStr == "" {
		return ref, fmt.Errorf("one of --log or --id is required")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return ref, fmt.Errorf("invalid --id: %w", err)
	}
	ref.ID = id
	return ref, nil
}

// payload returns --data, the contents of --file, or stdin when --file is "-".
func payload(cmd *cobra.Command) ([]byte, error) {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")
	b64, _ := cmd.Flags().GetBool("b64")
	var raw []byte
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, fmt.Errorf("one of --data or --file is required")
	}
	if !b64 {
		return raw, nil
	}
	out, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return out, nil
}

type logInfoOut struct {
	ID           string `json:"id"`
	Length       int64  `json:"length"`
	Head         int64  `json:"head"`
	MaxBlockSize int    `json:"max_block_size"`
	Driver       string `json:"driver"`
	Version      string `json:"version"`
}

func toLogInfoOut(in transports.LogInfo) logInfoOut {
	return logInfoOut{
		ID:           in.ID.String(),
		Length:       in.Length,
		Head:         in.Head,
		MaxBlockSize: in.MaxBlockSize,
		Driver:       in.Driver.Driver,
		Version:      in.Driver.Version,
	}
}
