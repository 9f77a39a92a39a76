package memory

import (
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
)

func (s *Store) SeedTheater(name, city string) domain.Theater {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := domain.Theater{ID: s.st.nextID(), Name: name, City: city}
	s.st.theaters[t.ID] = t
	return t
}

// SeedScreen creates a screen with rows A.. of perRow REGULAR seats, all
// priced priceCents.
func (s *Store) SeedScreen(theaterID int64, name string, rows, perRow int, priceCents int64) (domain.Screen, []domain.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := domain.Screen{ID: s.st.nextID(), TheaterID: theaterID, Name: name, Capacity: rows * perRow}
	s.st.screens[sc.ID] = sc

	th := s.st.theaters[theaterID]
	th.Capacity += sc.Capacity
	s.st.theaters[theaterID] = th

	seats := make([]domain.Seat, 0, rows*perRow)
	for r := 0; r < rows; r++ {
		for n := 1; n <= perRow; n++ {
			seat := domain.Seat{
				ID:         s.st.nextID(),
				ScreenID:   sc.ID,
				Row:        string(rune('A' + r)),
				Number:     n,
				Type:       domain.SeatRegular,
				PriceCents: priceCents,
				Available:  true,
			}
			s.st.seats[seat.ID] = seat
			seats = append(seats, seat)
		}
	}

	return sc, seats
}

func (s *Store) SeedMovie(title string, durationMin int) domain.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := domain.Movie{ID: s.st.nextID(), Title: title, DurationMin: durationMin}
	s.st.movies[m.ID] = m
	return m
}

func (s *Store) SeedSchedule(screenID, movieID int64, start, end time.Time) domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	sch := domain.Schedule{ID: s.st.nextID(), ScreenID: screenID, MovieID: movieID, StartsAt: start, EndsAt: end}
	s.st.schedules[sch.ID] = sch
	return sch
}
