package padron

var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidCUIT checks that cuit has 11 digits and a correct mod-11 check digit
func ValidCUIT(cuit string) bool {
	if len(cuit) != 11 {
		return false
	}
	sum := 0
	for i := 0; i < 11; i++ {
		if cuit[i] < '0' || cuit[i] > '9' {
			return false
		}
		if i < 10 {
			sum += int(cuit[i]-'0') * cuitWeights[i]
		}
	}

	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		return false
	}
	return int(cuit[10]-'0') == check
}
