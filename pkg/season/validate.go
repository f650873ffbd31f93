package season

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cbvault/pkg/schema"

	"github.com/fatih/color"
)

var (
	okLabel  = color.New(color.FgGreen).Sprint("OK")
	errLabel = color.New(color.FgRed).Sprint("ERROR")
	green    = color.New(color.FgGreen).SprintFunc()
	yellow   = color.New(color.FgYellow).SprintFunc()
	cyan     = color.New(color.FgCyan).SprintFunc()
)

// Validate 校验季和录音 JSON，并检查每个被引用的文件是否存在
// 返回发现的问题个数；JSON 本身不合法时返回 error
func Validate(w io.Writer, seasonJSON, dataRoot string) (int, error) {
	var raw seasonFile
	if err := schema.Decode(seasonJSON, &raw); err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "Checking season %s:\n", green(raw.Title))

	problems := 0
	check := func(indent, label, path, missing string) {
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(w, "%s%s: %s (%s)\n", indent, errLabel, missing, yellow(path))
			problems++
			return
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, okLabel, label)
	}

	base := filepath.Dir(seasonJSON)
	for _, ref := range raw.Recordings {
		fmt.Fprintf(w, "\n  Reading recording %s...\n", yellow(ref))
		rec, err := loadRecording(filepath.Join(base, ref), dataRoot)
		if err != nil {
			return problems, err
		}

		check("  ", "Stereo mix", filepath.Join(rec.dir, rec.StereoMix.Vorbis), "stereo mix file doesn't exist")
		check("  ", "torrent file", filepath.Join(rec.dir, rec.Torrent), "torrent file doesn't exist")

		fmt.Fprintf(w, "  Tracks for %s:\n", cyan(rec.Title))
		for _, t := range rec.Tracks {
			fmt.Fprintf(w, "    Checking track %s\n", cyan(t.ID))
			check("      ", "Flac original", filepath.Join(t.dir, t.Flac),
				fmt.Sprintf("flac file for `%s` track %d does not exist", rec.Title, t.ID))
			check("      ", "Ogg vorbis", filepath.Join(t.dir, t.Vorbis),
				fmt.Sprintf("ogg vorbis file for `%s` track %d does not exist", rec.Title, t.ID))
		}
	}
	return problems, nil
}
