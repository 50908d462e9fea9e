package octopus

import (
	"fmt"
	"regexp"
)

// Tariff codes embed the product code between the fuel/register prefix and
// the regional suffix, e.g. E-1R-VAR-22-11-01-C -> VAR-22-11-01.
var tariffRe = regexp.MustCompile(`^[EG]-[12]R-(.+)-[A-P]$`)

// ExtractProductCode derives the product code from a tariff code.
func ExtractProductCode(tariffCode string) (string, error) {
	m := tariffRe.FindStringSubmatch(tariffCode)
	if m == nil {
		return "", fmt.Errorf("cannot extract product code from tariff %q", tariffCode)
	}
	return m[1], nil
}
