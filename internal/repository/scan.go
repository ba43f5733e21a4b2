package repository

// rowScanner общий интерфейс pgx.Row и pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}
