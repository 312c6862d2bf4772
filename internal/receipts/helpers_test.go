package receipts

import pkgpagination "github.com/angelmondragon/snapspend-backend/pkg/pagination"

func paginationParams(limit int, cursor string) pkgpagination.Params {
	return pkgpagination.Params{Limit: limit, Cursor: cursor}
}
