package dashboard

import "errors"

var (
    ErrNoClient         = errors.New("dashboard: nil admin client")
    ErrAlreadyMounted   = errors.New("dashboard: already mounted")
    ErrTornDown         = errors.New("dashboard: torn down")
    ErrDeclined         = errors.New("dashboard: action declined")
    ErrJoinHostRequired = errors.New("dashboard: join host required")
    ErrNoSaver          = errors.New("dashboard: no file saver configured")
)
