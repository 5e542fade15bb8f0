package processors

import (
	"fmt"

	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/matching"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/parsers"
	"github.com/username/taxdeclaration/backend/src/security/validation"
)

// maxSuggestions bounds the "did you mean" list of a by-name miss.
const maxSuggestions = 3

// clientLocatorImpl implements ClientLocator over the registry sheet.
type clientLocatorImpl struct {
	reader  *parsers.SheetReader
	matcher matching.Matcher
}

// NewClientLocator creates a ClientLocator reading the registry through reader.
func NewClientLocator(reader *parsers.SheetReader) ClientLocator {
	return &clientLocatorImpl{reader: reader, matcher: matching.RegistryMatcher()}
}

// FindByID validates taxID and returns the first registry row attributed to it.
func (l *clientLocatorImpl) FindByID(taxID string) (*models.ClientRecord, error) {
	normalized, err := validation.ValidateTaxID(taxID)
	if err != nil {
		return nil, err
	}

	target := matching.Target{TaxID: normalized}
	var found *models.ClientRecord
	err = l.scan(func(row int, name, rawTaxID string) (bool, error) {
		res := l.matcher.Match(target, matching.Candidate{RawTaxID: rawTaxID, Name: name})
		if !res.Matched {
			return false, nil
		}
		rec, err := l.reader.ReadClient(row)
		if err != nil {
			return false, err
		}
		rec.TaxID = normalized
		rec.MatchReason = string(res.Reason)
		found = rec
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &models.NotFoundError{Query: normalized, Mode: models.ByIdentifier}
	}
	if found.MatchReason != string(matching.ExactID) {
		logger.Get().Info("Client located by fallback strategy", "row", found.Row, "reason", found.MatchReason)
	}
	return found, nil
}

// FindByName returns the first registry row whose name contains query,
// ignoring case and accents. A miss carries up to three close names.
func (l *clientLocatorImpl) FindByName(query string) (*models.ClientRecord, error) {
	query = validation.SanitizeQuery(query)
	if matching.NormalizeName(query) == "" {
		return nil, &validation.ValidationError{Input: query, Reason: validation.ErrEmptyQuery}
	}

	var found *models.ClientRecord
	var names []string
	err := l.scan(func(row int, name, _ string) (bool, error) {
		if !matching.ContainsFolded(name, query) {
			if name != "" {
				names = append(names, name)
			}
			return false, nil
		}
		rec, err := l.reader.ReadClient(row)
		if err != nil {
			return false, err
		}
		rec.MatchReason = string(matching.ExactName)
		found = rec
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &models.NotFoundError{
			Query:       query,
			Mode:        models.ByName,
			Suggestions: matching.NewSuggester(names).Suggest(query, maxSuggestions),
		}
	}
	return found, nil
}

// scan walks registry rows top to bottom until visit reports a hit.
func (l *clientLocatorImpl) scan(visit func(row int, name, rawTaxID string) (bool, error)) error {
	sheet := l.reader.Layout().Registry.Sheet
	first, last, err := l.reader.RowRange("locate client", sheet, l.reader.Layout().Registry.FirstRow)
	if err != nil {
		return err
	}
	for row := first; row <= last; row++ {
		name, rawTaxID, err := l.reader.RegistryIdentity(row)
		if err != nil {
			return &models.DataSourceError{Op: "locate client", Sheet: sheet, Err: fmt.Errorf("row %d: %w", row, err)}
		}
		if name == "" && rawTaxID == "" {
			continue
		}
		done, err := visit(row, name, rawTaxID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}
