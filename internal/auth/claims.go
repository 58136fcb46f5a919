package auth

import "fmt"

// ExtractClaimString extracts a non-empty string claim from ID token claims.
func ExtractClaimString(claims map[string]interface{}, claimField string) (string, error) {
	rawValue, ok := claims[claimField]
	if !ok {
		return "", fmt.Errorf("claim field %s not found", claimField)
	}

	value, ok := rawValue.(string)
	if !ok {
		return "", fmt.Errorf("claim field %s is not a string", claimField)
	}

	if value == "" {
		return "", fmt.Errorf("claim field %s is empty", claimField)
	}

	return value, nil
}

// ExtractEmailFromClaims extracts the email using a configurable claim field (default: "email").
func ExtractEmailFromClaims(claims map[string]interface{}, claimField string) (string, error) {
	if claimField == "" {
		claimField = "email"
	}
	return ExtractClaimString(claims, claimField)
}

// ExtractNameFromClaims extracts the display name using a configurable claim
// field (default: "name"), falling back to preferred_username.
func ExtractNameFromClaims(claims map[string]interface{}, claimField string) (string, error) {
	if claimField == "" {
		claimField = "name"
	}
	name, err := ExtractClaimString(claims, claimField)
	if err == nil {
		return name, nil
	}
	if fallback, ferr := ExtractClaimString(claims, "preferred_username"); ferr == nil {
		return fallback, nil
	}
	return "", err
}
