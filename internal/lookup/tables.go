package lookup

// AreaTable lists the supported area granularities
func AreaTable() Table {
	return Table{
		{FullName: "GP Practice", ShortName: "gpp_name"},
		{FullName: "Ward", ShortName: "electoral_ward_or_division"},
		{FullName: "Primary Care Network", ShortName: "pcn"},
		{FullName: "CCG", ShortName: "ccg"},
		{FullName: "ICP", ShortName: "icp"},
	}
}

// ConditionTable lists the long-term condition flags in population_master
func ConditionTable() Table {
	return Table{
		{FullName: "Asthma", ShortName: "asthma"},
		{FullName: "Atrial Fibrillation", ShortName: "atrial_fibrillation"},
		{FullName: "Cancer", ShortName: "cancer"},
		{FullName: "Coronary Heart Disease", ShortName: "chd"},
		{FullName: "Chronic Kidney Disease", ShortName: "ckd"},
		{FullName: "COPD", ShortName: "copd"},
		{FullName: "Dementia", ShortName: "dementia"},
		{FullName: "Depression", ShortName: "depression"},
		{FullName: "Diabetes", ShortName: "diabetes"},
		{FullName: "Epilepsy", ShortName: "epilepsy"},
		{FullName: "Heart Failure", ShortName: "heart_failure"},
		{FullName: "Hypertension", ShortName: "hypertension"},
		{FullName: "Learning Disability", ShortName: "learning_disability"},
		{FullName: "Mental Health", ShortName: "mental_health"},
		{FullName: "Osteoporosis", ShortName: "osteoporosis"},
		{FullName: "Peripheral Arterial Disease", ShortName: "pad"},
		{FullName: "Rheumatoid Arthritis", ShortName: "rheumatoid_arthritis"},
		{FullName: "Stroke / TIA", ShortName: "stroke_tia"},
	}
}

// PredictorTable lists the demographic and utilisation predictors
func PredictorTable() Table {
	return Table{
		{FullName: "Age", ShortName: "age"},
		{FullName: "Sex", ShortName: "sex"},
		{FullName: "IMD Decile", ShortName: "imd_decile"},
		{FullName: "Ethnicity", ShortName: "ethnicity"},
		{FullName: "A&E Attendances", ShortName: "ae_attendances"},
		{FullName: "Inpatient Admissions", ShortName: "ip_admissions"},
		{FullName: "Outpatient Appointments", ShortName: "op_appointments"},
		{FullName: "Number of Long-Term Conditions", ShortName: "ltc_count"},
	}
}
