package cli

import (
	"strconv"

	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the metadata index for diagnostics",
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

type indexDump struct {
	*index.Snapshot
}

func (d indexDump) Headers() []string {
	return []string{"App", "Path", "Remote ID", "Dirty", "Source", "Conflict"}
}

func (d indexDump) Rows() [][]string {
	rows := make([][]string, 0, len(d.Files))
	for _, f := range d.Files {
		rows = append(rows, []string{
			f.AppID,
			truncate(f.RelativePath, 40),
			truncate(f.RemoteID, 15),
			strconv.FormatBool(f.Dirty),
			string(f.DirtySource),
			strconv.FormatBool(f.Conflicting),
		})
	}
	return rows
}

func (d indexDump) EmptyMessage() string { return "Index is empty" }

func runDump(cmd *cobra.Command, args []string) error {
	db, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	snapshot, err := db.Dump(cmd.Context())
	if err != nil {
		return err
	}
	return NewOutputWriter().WriteResult("dump", utils.CodeOK, indexDump{snapshot})
}
