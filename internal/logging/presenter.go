// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	qerrors "querydesk/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// Hint returns a one-line suggestion for errors the user can act on.
func Hint(err error) string {
	switch qerrors.KindOf(err) {
	case qerrors.CatalogUnavailable:
		return "check the database with 'querydesk dbinfo' or reconnect with 'querydesk connect'"
	case qerrors.TooManyTurns:
		return "the model kept calling tools; try a more specific question or raise agent.max_turns"
	case qerrors.MaxRetriesExceeded:
		return "the model did not pick a listed resource; try rephrasing or set QUERYDESK_STRATEGY=catalog"
	case qerrors.ConfigInvalid:
		return "fix the setting in the config file or environment"
	}
	return ""
}
