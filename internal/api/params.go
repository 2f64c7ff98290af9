package api

import (
	"strconv"
	"strings"
	"time"

	"propflow/config"
	"propflow/logger"
	"propflow/models"
)

// dateLayout is the calendar-day format the list endpoint accepts. Parsed
// dates are taken as UTC days, matching the filter's game-time semantics.
const dateLayout = "2006-01-02"

// listParams is the typed form of a list request's query string. Everything
// downstream of this type works with validated values only.
type listParams struct {
	Filter models.QueryFilter
	Sort   models.SortSpec
	Page   models.PageRequest
}

// parseListParams coerces the raw query values into a typed query. Malformed
// numeric or date values fall back to their defaults or to "no constraint"
// with a debug log; a bad parameter never fails the request. Unrecognised
// sortBy/sortOrder values substitute the default ordering.
func parseListParams(values map[string]string, engCfg config.EngineConfig, log *logger.Log) listParams {
	params := listParams{
		Sort: models.DefaultSort(),
		Page: models.PageRequest{Page: 1, Limit: engCfg.DefaultLimit},
	}

	params.Filter.Sport = strings.TrimSpace(values["sport"])
	params.Filter.Stat = strings.TrimSpace(values["stat"])
	params.Filter.Team = strings.TrimSpace(values["team"])
	params.Filter.Player = strings.TrimSpace(values["player"])

	if raw := strings.TrimSpace(values["date"]); raw != "" {
		if date, err := time.ParseInLocation(dateLayout, raw, time.UTC); err == nil {
			params.Filter.Date = date
		} else {
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "date",
				"value": raw,
			}).Debug("ignoring malformed date parameter")
		}
	}

	if raw := strings.TrimSpace(values["minConfidence"]); raw != "" {
		if min, err := strconv.Atoi(raw); err == nil && min > 0 {
			params.Filter.MinConfidence = float64(min)
		} else {
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "minConfidence",
				"value": raw,
			}).Debug("ignoring malformed minConfidence parameter")
		}
	}

	if raw := strings.TrimSpace(values["sortBy"]); raw != "" {
		switch field := models.SortField(raw); field {
		case models.SortByConfidence, models.SortByGameTime, models.SortByPlayer,
			models.SortByLine, models.SortByPredictedValue:
			params.Sort.Field = field
		default:
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "sortBy",
				"value": raw,
			}).Debug("unknown sort field, using default")
		}
	}

	if raw := strings.TrimSpace(values["sortOrder"]); raw != "" {
		switch direction := models.SortDirection(raw); direction {
		case models.SortAsc, models.SortDesc:
			params.Sort.Direction = direction
		default:
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "sortOrder",
				"value": raw,
			}).Debug("unknown sort order, using default")
		}
	}

	if raw := strings.TrimSpace(values["page"]); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page >= 1 {
			params.Page.Page = page
		} else {
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "page",
				"value": raw,
			}).Debug("ignoring malformed page parameter")
		}
	}

	if raw := strings.TrimSpace(values["limit"]); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 1 {
			params.Page.Limit = limit
		} else {
			log.WithComponent("api").WithFields(logger.Fields{
				"param": "limit",
				"value": raw,
			}).Debug("ignoring malformed limit parameter")
		}
	}
	if params.Page.Limit > engCfg.MaxLimit {
		params.Page.Limit = engCfg.MaxLimit
	}

	return params
}
