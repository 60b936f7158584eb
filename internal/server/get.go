package server

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
)

// defaultUnusedFileExtensions is used by find-unused-song-files when the
// request omits an explicit extensions list (spec §4.9).
var defaultUnusedFileExtensions = []string{".mp3"}

// BulkFetcher serves the read-only "get" role (spec §4.9): large binary
// payloads that are impractical to broadcast to every sink.
type BulkFetcher struct {
	cat *catalog.Catalog

	// customFilesEnabled/customFilesDir mirror original_source's
	// Option<Option<PathBuf>>: disabled entirely, enabled rooted at the
	// library directory, or enabled rooted at an explicit directory.
	customFilesEnabled bool
	customFilesDir     string // empty means "use the library directory"
}

// NewBulkFetcher returns a fetcher over cat. Custom-file serving is
// disabled until EnableCustomFiles is called.
func NewBulkFetcher(cat *catalog.Catalog) *BulkFetcher {
	return &BulkFetcher{cat: cat}
}

// EnableCustomFiles turns on the custom-file verb, rooted at dir. An empty
// dir roots it at the catalog's library directory instead.
func (b *BulkFetcher) EnableCustomFiles(dir string) {
	b.customFilesEnabled = true
	b.customFilesDir = dir
}

// handleConnection serves request lines off r until the connection closes
// (spec §6.3: "get" role, escape-scheme request lines).
func (b *BulkFetcher) handleConnection(conn net.Conn, r *bufio.Reader) {
	defer conn.Close()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		request := decodeEscapes(strings.TrimRight(line, "\n"))
		parts := strings.Split(request, "\n")
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		b.dispatch(conn, parts[0], parts[1:])
	}
}

func (b *BulkFetcher) dispatch(conn net.Conn, verb string, args []string) {
	switch verb {
	case "cover-bytes":
		b.handleCoverBytes(conn, args)
	case "song-file":
		b.handleSongFile(conn, args)
	case "custom-file":
		b.handleCustomFile(conn, args)
	case "song-file-by-path":
		b.handleSongFileByPath(conn, args)
	case "find-unused-song-files":
		b.handleFindUnusedSongFiles(conn, args)
	default:
		writeLine(conn, "unknown verb")
	}
}

// handleCoverBytes serves "cover-bytes <id>" for the full-size image, or
// "cover-bytes <id> thumbnail" for a lazily generated, resized JPEG (spec
// §4.9). The thumbnail is computed once per cover and cached alongside the
// original in the cover's CoverCache.
func (b *BulkFetcher) handleCoverBytes(conn net.Conn, args []string) {
	if len(args) == 0 {
		writeLine(conn, "bad cover id")
		return
	}
	wantThumbnail := len(args) > 1 && args[1] == "thumbnail"

	id, ok := parseID(args[:1])
	if !ok {
		writeLine(conn, "bad cover id")
		return
	}
	cover, ok := b.cat.Cover(catalog.CoverID(id))
	if !ok {
		writeLine(conn, "no cover")
		return
	}

	original, thumbnail, cached := cover.Cache.Get()
	if !cached {
		data, err := os.ReadFile(filepath.Join(b.cat.LibraryDirectory(), cover.Location))
		if err != nil {
			writeLine(conn, "no data")
			return
		}
		cover.Cache.Set(data, nil)
		original, thumbnail = data, nil
	}

	if !wantThumbnail {
		writeLenPrefixed(conn, original)
		return
	}
	if thumbnail == nil {
		thumb, err := catalog.GenerateThumbnail(original)
		if err != nil {
			log.WithError(err).WithField("cover", id).Warn("thumbnail generation failed")
			writeLine(conn, "thumbnail failed")
			return
		}
		cover.Cache.SetThumbnail(thumb)
		thumbnail = thumb
	}
	writeLenPrefixed(conn, thumbnail)
}

func (b *BulkFetcher) handleSongFile(conn net.Conn, args []string) {
	id, ok := parseID(args)
	if !ok {
		writeLine(conn, "bad song id")
		return
	}
	song, ok := b.cat.Song(catalog.SongID(id))
	if !ok {
		writeLine(conn, "no data")
		return
	}
	if data, ok := song.Cache.Bytes(); ok {
		writeLenPrefixed(conn, data)
		return
	}
	data, err := os.ReadFile(filepath.Join(b.cat.LibraryDirectory(), song.Location))
	if err != nil {
		writeLine(conn, "no data")
		return
	}
	writeLenPrefixed(conn, data)
}

func (b *BulkFetcher) handleCustomFile(conn net.Conn, args []string) {
	if !b.customFilesEnabled || len(args) == 0 {
		writeLine(conn, "no data")
		return
	}
	parent := b.customFilesDir
	if parent == "" {
		parent = b.cat.LibraryDirectory()
	}
	data, err := readUnderRoot(parent, args[0])
	if err != nil {
		writeLine(conn, "no data")
		return
	}
	writeLenPrefixed(conn, data)
}

func (b *BulkFetcher) handleSongFileByPath(conn net.Conn, args []string) {
	if len(args) == 0 {
		writeLine(conn, "no data")
		return
	}
	data, err := readUnderRoot(b.cat.LibraryDirectory(), args[0])
	if err != nil {
		writeLine(conn, "no data")
		return
	}
	writeLenPrefixed(conn, data)
}

// readUnderRoot reads rel joined onto root, refusing absolute paths and any
// path that escapes root after normalization (spec §4.9: path-traversal
// guard).
func readUnderRoot(root, rel string) ([]byte, error) {
	if filepath.IsAbs(rel) {
		return nil, os.ErrPermission
	}
	full := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root) + string(filepath.Separator)
	if !strings.HasPrefix(full+string(filepath.Separator), cleanRoot) {
		return nil, os.ErrPermission
	}
	return os.ReadFile(full)
}

func (b *BulkFetcher) handleFindUnusedSongFiles(conn net.Conn, args []string) {
	extensions := defaultUnusedFileExtensions
	for _, arg := range args {
		if arg == "extensions" {
			extensions = nil // allow every file
			continue
		}
		if rest, ok := strings.CutPrefix(arg, "extensions="); ok {
			if rest == "" {
				extensions = nil
			} else {
				extensions = strings.Split(rest, ":")
			}
		}
	}

	referenced := make(map[string]bool)
	for _, song := range b.cat.Songs() {
		referenced[song.Location] = true
	}

	var unused []string
	root := b.cat.LibraryDirectory()
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if extensions != nil {
			matched := false
			for _, ext := range extensions {
				if strings.HasSuffix(filepath.Base(path), ext) {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}
		if !referenced[rel] {
			unused = append(unused, rel)
		}
		return nil
	})

	writeLine(conn, "len: "+strconv.Itoa(len(unused)))
	for _, path := range unused {
		if strings.ContainsRune(path, '\n') {
			writeLine(conn, "!"+strings.ReplaceAll(path, "\n", ""))
		} else {
			writeLine(conn, "#"+path)
		}
	}
}

func parseID(args []string) (uint64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
	return v, err == nil
}

func writeLine(w io.Writer, s string) {
	io.WriteString(w, s+"\n")
}

func writeLenPrefixed(w io.Writer, data []byte) {
	writeLine(w, "len: "+strconv.Itoa(len(data)))
	w.Write(data)
}

// decodeEscapes reverses the request-line escape scheme (spec §6.3:
// "\n"->"\\n", "\r"->"\\r", "\\"->"\\\\").
func decodeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// encodeEscapes applies the request-line escape scheme, the inverse of the
// decoding above; nothing in this package calls it.
func encodeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch ch {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
