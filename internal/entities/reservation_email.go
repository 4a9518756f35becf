package entities

type ReservationEmailData struct {
	UserName           string
	ReservationCode    string
	StartTimeFormatted string
	EndTimeFormatted   string
	CurrentYear        int
	Status             string
}
