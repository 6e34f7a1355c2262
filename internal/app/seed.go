package app

import "reviewflow/internal/domain"

// Demo seed shown before a real platform is connected. Disconnecting always
// restores these exact values, so the functions hand out fresh slices.

func seedLocations() []domain.Location {
	return []domain.Location{
		{
			ID:             "loc_1",
			Name:           "Le Petit Bistrot Paris",
			Address:        "12 Rue de Rivoli, 75001 Paris",
			OrganizationID: "org_1",
		},
		{
			ID:             "loc_2",
			Name:           "Reviewflow HQ",
			Address:        "Station F, 75013 Paris",
			OrganizationID: "org_1",
		},
	}
}

func seedReviews() []domain.Review {
	return []domain.Review{
		{
			ID:         "rev_1",
			LocationID: "loc_1",
			AuthorName: "Jean Dupont",
			Rating:     5,
			Text:       "Excellent meal! Impeccable service and delicious dishes. The beef bourguignon is highly recommended.",
			Date:       "2023-10-25",
			Source:     domain.SourceGoogle,
		},
		{
			ID:         "rev_2",
			LocationID: "loc_1",
			AuthorName: "Marie Curie",
			Rating:     2,
			Text:       "Quite disappointed. We waited 45 minutes to be served and the food was cold.",
			Date:       "2023-10-24",
			Source:     domain.SourceGoogle,
		},
		{
			ID:         "rev_3",
			LocationID: "loc_2",
			AuthorName: "Startup Lover",
			Rating:     5,
			Text:       "Great tool for managing our reviews. The interface is clear and fast.",
			Date:       "2023-10-23",
			Source:     domain.SourceGoogle,
			IsReplied:  true,
			Response:   "Thank you so much! We're thrilled Reviewflow helps you day to day. The Reviewflow team.",
		},
		{
			ID:         "rev_4",
			LocationID: "loc_1",
			AuthorName: "Pierre Martin",
			Rating:     4,
			Text:       "Very good, but a bit noisy on Saturday nights.",
			Date:       "2023-10-20",
			Source:     domain.SourceGoogle,
		},
	}
}

func defaultIntegrations() []domain.Integration {
	return []domain.Integration{
		{ID: "1", Platform: domain.PlatformGoogle, Name: "Google Business Profile", Icon: "google"},
		{ID: "2", Platform: domain.PlatformFacebook, Name: "Facebook Pages", Icon: "facebook"},
		{ID: "3", Platform: domain.PlatformTripAdvisor, Name: "TripAdvisor", Icon: "tripadvisor"},
	}
}
