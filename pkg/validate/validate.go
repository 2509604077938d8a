package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

var (
	geoRegex        = regexp.MustCompile(`^\d{1,2}\.\d{1,8}$`)
	numRegex        = regexp.MustCompile(`^-?\d+(,\d+)?$`)
	dateRegex       = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	postRegex       = regexp.MustCompile(`^[1-9][0-9]{3}\s?[A-Z]{2}$`)
	postStrictRegex = regexp.MustCompile(`^[1-9][0-9]{3} [A-Z]{2}$`)
	shortNameRegex  = regexp.MustCompile(`^[a-z][0-9a-z_]+$`)
)

// Two-letter combinations that spell out reserved words are not issued
// as Dutch postal codes.
var forbiddenPostLetters = map[string]bool{"SA": true, "SD": true, "SS": true}

// ShortName checks the identifier format shared by property and service
// short-names.
func ShortName(value string) error {
	if !shortNameRegex.MatchString(value) {
		return fmt.Errorf("Ongeldige waarde voor: %s", value)
	}
	return nil
}

func validBool(value string) error {
	if value == "Ja" || value == "Nee" {
		return nil
	}
	return fmt.Errorf("'%s' is geen geldige boolean.", value)
}

func validDate(value string) error {
	if !dateRegex.MatchString(value) {
		return fmt.Errorf("'%s' is geen geldige datum.", value)
	}
	if _, err := time.Parse("02-01-2006", value); err != nil {
		return fmt.Errorf("'%s' is geen geldige datum.", value)
	}
	return nil
}

func validEmail(value string) error {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return fmt.Errorf("'%s' is geen geldig e-mail adres.", value)
	}
	domain := value[strings.LastIndex(value, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("'%s' is geen geldig e-mail adres.", value)
	}
	return nil
}

func validGeo(value string) error {
	if !geoRegex.MatchString(value) {
		return fmt.Errorf("'%s' is geen geldige geo coördinaat.", value)
	}
	return nil
}

func validNum(value string) error {
	if !numRegex.MatchString(value) {
		return fmt.Errorf("'%s' is geen geldig getal.", value)
	}
	return nil
}

func validText(value string) error {
	return nil
}

func validURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("'%s' is geen geldige url.", value)
	}
	switch u.Scheme {
	case "http", "https", "ftp", "ftps":
	default:
		return fmt.Errorf("'%s' is geen geldige url.", value)
	}
	if strings.ContainsAny(u.Host, "_ ") {
		return fmt.Errorf("'%s' is geen geldige url.", value)
	}
	return nil
}

// scalarValidators is the function table for all kinds that need no
// catalog context. POST and CHOICE are dispatched separately because
// they depend on the property (strictness flag, option set).
var scalarValidators = map[model.PropertyKind]func(string) error{
	model.KindBool:   validBool,
	model.KindDate:   validDate,
	model.KindEmail:  validEmail,
	model.KindGeo:    validGeo,
	model.KindNum:    validNum,
	model.KindMemo:   validText,
	model.KindString: validText,
	model.KindURL:    validURL,
}

func validPost(value string, strict bool) error {
	re := postRegex
	if strict {
		re = postStrictRegex
	}
	if !re.MatchString(value) || forbiddenPostLetters[value[len(value)-2:]] {
		return fmt.Errorf("'%s' is geen geldige postcode.", value)
	}
	return nil
}

func validChoice(prop db.Property, options []string, values []string) error {
	allowed := make(map[string]bool, len(options))
	for _, o := range options {
		allowed[o] = true
	}
	for _, v := range values {
		if !allowed[v] {
			return fmt.Errorf("'%s' is geen geldige invoer voor %s.", v, prop.Label)
		}
	}
	return nil
}

// Value checks one incoming field value against the property's declared
// kind. The option set of a CHOICE property is injected by the caller;
// the validator itself does no I/O.
func Value(prop db.Property, options []string, value model.FieldValue) error {
	values := value.Strings(prop.Multiple)
	if len(values) == 0 {
		return nil
	}

	if prop.Kind == model.KindChoice {
		return validChoice(prop, options, values)
	}

	for _, v := range values {
		var err error
		if prop.Kind == model.KindPost {
			err = validPost(v, prop.Strict)
		} else if fn, ok := scalarValidators[prop.Kind]; ok {
			err = fn(v)
		} else {
			err = fmt.Errorf("%s is not a valid property kind", prop.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
