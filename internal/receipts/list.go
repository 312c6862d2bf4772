package receipts

import (
	"time"

	"github.com/google/uuid"

	pkgpagination "github.com/angelmondragon/snapspend-backend/pkg/pagination"
)

// ListParams selects a page of a user's receipts, newest purchase first.
// From is inclusive and To is exclusive.
type ListParams struct {
	UserID uuid.UUID
	From   *time.Time
	To     *time.Time
	pkgpagination.Params
}

// ListResult is one page of receipts.
type ListResult = pkgpagination.Page[ReceiptDTO]

type listQuery struct {
	userID uuid.UUID
	from   *time.Time
	to     *time.Time
	limit  int
	cursor *pkgpagination.Cursor
}
