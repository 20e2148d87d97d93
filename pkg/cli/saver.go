package cli

import (
    "fmt"
    "io"
    "log"
    "os"
    "path/filepath"

    "github.com/amirimatin/go-console/pkg/internal/logutil"
    "github.com/amirimatin/go-console/pkg/render"
)

// DirSaver writes downloads into Dir and reports the path on Out.
type DirSaver struct {
    Dir    string
    Out    io.Writer
    Logger *log.Logger
}

func (s *DirSaver) Save(name, contentType string, data []byte) error {
    if err := render.ValidateTemplate(data); err != nil {
        logutil.Warnf(s.Logger, "saving anyway: %v", err)
    }
    dir := s.Dir
    if dir == "" { dir = "." }
    if err := os.MkdirAll(dir, 0o755); err != nil { return err }
    path := filepath.Join(dir, filepath.Base(name))
    if err := os.WriteFile(path, data, 0o644); err != nil { return err }
    if s.Out != nil { fmt.Fprintf(s.Out, "saved %s (%s, %d bytes)\n", path, contentType, len(data)) }
    return nil
}
