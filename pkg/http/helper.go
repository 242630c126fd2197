package http

import (
	"net/http"
	"strconv"

	"treadline/pkg/config"
	apperrors "treadline/pkg/errors"
	"treadline/pkg/model"
)

// Actor headers are populated by the authenticating gateway in front of this
// service; authentication itself is out of scope here.
const (
	HeaderActorID   = "X-Employee-Id"
	HeaderActorRole = "X-Employee-Role"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = int64(v)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

func ExtractActor(r *http.Request) model.Actor {
	return model.Actor{
		EmployeeID: r.Header.Get(HeaderActorID),
		Role:       r.Header.Get(HeaderActorRole),
	}
}
